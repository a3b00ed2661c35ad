package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"creditiq/pkg/core/ingest"
)

// resolveSource turns a CLI argument into a Source: http(s) URLs are
// fetched, anything else is read as a local file. A ticker wins over arg.
func (a *app) resolveSource(ctx context.Context, arg, ticker string) (ingest.Source, error) {
	if ticker != "" {
		f, err := a.edgar.FetchLatest10Q(ctx, strings.ToUpper(ticker))
		if err != nil {
			return ingest.Source{}, fmt.Errorf("resolve ticker %s: %w", ticker, err)
		}
		a.log.WithField("ticker", ticker).WithField("url", f.URL).Info("latest 10-Q resolved")
		return ingest.Source{URL: f.URL, Filename: f.PrimaryDocument}, nil
	}
	return sourceFromArg(arg)
}

func sourceFromArg(arg string) (ingest.Source, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ingest.Source{}, fmt.Errorf("a filing URL, file path or --ticker is required")
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return ingest.Source{URL: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return ingest.Source{}, err
	}
	return ingest.Source{Data: data, Filename: filepath.Base(arg)}, nil
}
