package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/pipeline"

	"github.com/spf13/cobra"
)

func newBatchCmd(c *cli) *cobra.Command {
	var parallelism int
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Analyze many filings listed in a file",
		Long: `Batch runs the pipeline over every filing listed in <file>, one URL,
path or "ticker:SYMBOL" per line. Blank lines and lines starting with # are
ignored. Each run is audited in the results directory.

Example:
  creditiq batch filings.txt --parallelism 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			entries, err := readBatchFile(f)
			f.Close()
			if err != nil {
				return err
			}

			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.batchSources(ctx, entries)
			if err != nil {
				return err
			}
			results, err := a.orch.RunBatch(ctx, sources, parallelism)
			printBatch(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().IntVar(&parallelism, "parallelism", pipeline.DefaultParallelism, "concurrent runs")
	return cmd
}

func readBatchFile(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// batchSources resolves every entry up front so that one bad line fails
// fast, before any filing is processed.
func (a *app) batchSources(ctx context.Context, entries []string) ([]ingest.Source, error) {
	sources := make([]ingest.Source, 0, len(entries))
	for _, e := range entries {
		var (
			src ingest.Source
			err error
		)
		if t, ok := strings.CutPrefix(e, "ticker:"); ok {
			src, err = a.resolveSource(ctx, "", strings.TrimSpace(t))
		} else {
			src, err = sourceFromArg(e)
		}
		if err != nil {
			return nil, fmt.Errorf("batch entry %q: %w", e, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func printBatch(w io.Writer, results []*pipeline.RunResult) {
	var done int
	for _, res := range results {
		if res == nil {
			continue
		}
		line := fmt.Sprintf("%-36s  %-10s  %s", res.RunID, res.State, res.URL)
		if res.Succeeded() {
			done++
		} else if res.Error != "" {
			line += "  (" + res.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d of %d runs completed\n", done, len(results))
}
