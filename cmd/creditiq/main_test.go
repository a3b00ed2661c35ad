package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"creditiq/pkg/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunWithMockProvider(t *testing.T) {
	dir := t.TempDir()
	filing := filepath.Join(dir, "acme-10q.txt")
	require.NoError(t, os.WriteFile(filing, []byte("Total Current Assets: $500 million. Total Current Liabilities: $250 million."), 0o644))
	results := filepath.Join(dir, "out")

	out, err := execute(t, "run", filing, "--provider", "mock", "--results-dir", results)
	require.Error(t, err, "the mock provider returns no JSON, so extraction fails")
	assert.Contains(t, err.Error(), "failed at extracting")
	assert.Contains(t, out, "Source:  acme-10q.txt")
	assert.Contains(t, out, "State:   failed")

	runs, err := os.ReadDir(results)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	for _, name := range []string{store.FileExtraction, store.FileAnalysis, store.FileVerification, store.FileSummary, store.FileComplete} {
		assert.FileExists(t, filepath.Join(results, runs[0].Name(), name))
	}
}

func TestRunNeedsSource(t *testing.T) {
	_, err := execute(t, "run", "--provider", "mock", "--results-dir", t.TempDir())
	assert.ErrorContains(t, err, "--ticker is required")
}

func TestExportNeedsOutput(t *testing.T) {
	_, err := execute(t, "export", "6f1c2a8e-0000-4000-8000-000000000000", "--provider", "mock")
	assert.ErrorContains(t, err, "nothing to export")
}

func TestReadBatchFile(t *testing.T) {
	in := "# quarterly filings\nhttps://example.com/a.htm\n\n  ticker:AAPL  \n./b.pdf\n"
	got, err := readBatchFile(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.htm", "ticker:AAPL", "./b.pdf"}, got)
}

func TestSourceFromArg(t *testing.T) {
	src, err := sourceFromArg(" https://example.com/10q.htm ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/10q.htm", src.URL)

	path := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	src, err = sourceFromArg(path)
	require.NoError(t, err)
	assert.Equal(t, "x.txt", src.Filename)
	assert.Equal(t, []byte("hello"), src.Data)

	_, err = sourceFromArg(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}
