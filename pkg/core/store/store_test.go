package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *pipeline.RunResult {
	return &pipeline.RunResult{
		RunID:               uuid.NewString(),
		URL:                 "https://www.sec.gov/Archives/acme-10q.htm",
		Timestamp:           time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		State:               pipeline.StateDone,
		Step1Extraction:     json.RawMessage(`{"Company":"Acme","Liquidity":{"Current_Ratio":"2.00"}}`),
		Step2Analysis:       "**Company Snapshot** Acme",
		Step3Verification:   "✅ All values verified.",
		Step4ExtractSummary: "**Commentary Summary:**\n- ok",
		Statuses:            map[string]llm.Status{pipeline.StageExtraction: llm.StatusOK},
	}
}

func TestFileStoreWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, nil)
	res := sampleResult()
	require.NoError(t, fs.Save(context.Background(), res))

	for _, name := range []string{FileExtraction, FileAnalysis, FileVerification, FileSummary, FileComplete} {
		assert.FileExists(t, filepath.Join(dir, res.RunID, name))
	}
	step1, err := os.ReadFile(filepath.Join(dir, res.RunID, FileExtraction))
	require.NoError(t, err)
	assert.Contains(t, string(step1), "\n  \"Company\": \"Acme\"")
	analysis, err := os.ReadFile(filepath.Join(dir, res.RunID, FileAnalysis))
	require.NoError(t, err)
	assert.Equal(t, res.Step2Analysis, string(analysis))

	got, err := fs.Load(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.URL, got.URL)
	assert.Equal(t, pipeline.StateDone, got.State)
	rec, ok := got.Record()
	require.True(t, ok)
	assert.Equal(t, "2.00", rec.Liquidity.CurrentRatio.String())
}

func TestFileStoreRunsAreDisjoint(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, nil)
	a, b := sampleResult(), sampleResult()
	b.Step2Analysis = "second run"
	require.NoError(t, fs.Save(context.Background(), a))
	require.NoError(t, fs.Save(context.Background(), b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	got, err := fs.Load(context.Background(), a.RunID)
	require.NoError(t, err)
	assert.Equal(t, a.Step2Analysis, got.Step2Analysis)
}

func TestFileStoreRejectsUnknownIDs(t *testing.T) {
	fs := NewFileStore(t.TempDir(), nil)
	_, err := fs.Load(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = fs.Load(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditFile(t *testing.T) {
	a := NewAuditFile(filepath.Join(t.TempDir(), "logs", "audit.jsonl"))
	entries, err := a.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.Append(context.Background(), pipeline.AuditEntry{URL: "a", Timestamp: ts, Status: pipeline.StateDone}))
	require.NoError(t, a.Append(context.Background(), pipeline.AuditEntry{URL: "b", Timestamp: ts, Status: pipeline.StateFailed}))

	entries, err = a.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].URL)
	assert.Equal(t, pipeline.StateFailed, entries[1].Status)
	assert.True(t, ts.Equal(entries[0].Timestamp))
}

type failingSink struct{ calls int }

func (f *failingSink) Save(context.Context, *pipeline.RunResult) error {
	f.calls++
	return errors.New("offline")
}

func TestMultiTriesEverySink(t *testing.T) {
	first := &failingSink{}
	fs := NewFileStore(t.TempDir(), nil)
	res := sampleResult()

	err := Multi{first, fs}.Save(context.Background(), res)
	assert.EqualError(t, err, "offline")
	assert.Equal(t, 1, first.calls)
	_, err = fs.Load(context.Background(), res.RunID)
	assert.NoError(t, err)
}

func TestNewPoolNeedsURL(t *testing.T) {
	_, err := NewPool(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDatabase)
}

// testDatabase returns a migrated pool, or skips when no database is configured.
func testDatabase(t *testing.T) *RunRepo {
	t.Helper()
	url := os.Getenv("CREDITIQ_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CREDITIQ_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, url))
	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRunRepo(pool)
}

func TestRunRepoUpsert(t *testing.T) {
	repo := testDatabase(t)
	ctx := context.Background()
	res := sampleResult()
	require.NoError(t, repo.Save(ctx, res))

	res.State = pipeline.StateFailed
	require.NoError(t, repo.Save(ctx, res))

	got, err := repo.Load(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateFailed, got.State)

	_, err = repo.Load(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkRepoRoundTrip(t *testing.T) {
	runs := testDatabase(t)
	repo := NewChunkRepo(runs.pool)
	ctx := context.Background()

	chunks := []knowledge.Chunk{
		{ID: "h-0000", Position: 0, Start: 0, End: 5, Text: "alpha", Type: knowledge.ChunkParagraph},
		{ID: "h-0001", Position: 1, Start: 5, End: 9, Text: "beta", Type: knowledge.ChunkTable},
	}
	hash := uuid.NewString()
	ix, err := knowledge.NewIndexFromVectors(ctx, hash, chunks, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	key := hash + "|hash-2|100/20"
	require.NoError(t, repo.Put(ctx, key, ix))

	got, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, got.DocumentHash)
	assert.Equal(t, 2, got.Count())
	assert.Equal(t, "h-0000", got.Chunks[1].PrevID)
	assert.True(t, got.Chunks[1].IsTable())

	_, ok, err = repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// a new key for the same document replaces the stored index
	require.NoError(t, repo.Put(ctx, hash+"|hash-4|100/20", ix))
	_, ok, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
