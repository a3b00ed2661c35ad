package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/pipeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Artifact file names inside a run directory.
const (
	FileExtraction   = "step1_extraction.json"
	FileAnalysis     = "step2_analysis.md"
	FileVerification = "step3_verification.txt"
	FileSummary      = "step4_extracted_summary.txt"
	FileComplete     = "complete_results.json"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// FileStore writes each run to its own directory under dir.
type FileStore struct {
	dir string
	log *logrus.Entry
}

func NewFileStore(dir string, log *logrus.Entry) *FileStore {
	return &FileStore{dir: dir, log: logging.OrDiscard(log)}
}

// Dir is the run directory of id.
func (s *FileStore) Dir(id string) string { return filepath.Join(s.dir, id) }

// Save writes the step artifacts and complete_results.json of res.
func (s *FileStore) Save(_ context.Context, res *pipeline.RunResult) error {
	if err := validID(res.RunID); err != nil {
		return err
	}
	dir := s.Dir(res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	complete, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{FileExtraction, indentJSON(res.Step1Extraction)},
		{FileAnalysis, []byte(res.Step2Analysis)},
		{FileVerification, []byte(res.Step3Verification)},
		{FileSummary, []byte(res.Step4ExtractSummary)},
		{FileComplete, complete},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	s.log.WithFields(logrus.Fields{"run_id": res.RunID, "dir": dir}).Info("run artifacts saved")
	return nil
}

// Load reads back complete_results.json of id.
func (s *FileStore) Load(_ context.Context, id string) (*pipeline.RunResult, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(id), FileComplete))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var res pipeline.RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FileComplete, err)
	}
	return &res, nil
}

// validID keeps ids from escaping the results directory.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid run id %q", ErrNotFound, id)
	}
	return nil
}

func indentJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}

// Multi saves to every sink in order and returns the first error after
// trying them all.
type Multi []pipeline.Sink

func (m Multi) Save(ctx context.Context, res *pipeline.RunResult) error {
	var first error
	for _, s := range m {
		if err := s.Save(ctx, res); err != nil && first == nil {
			first = err
		}
	}
	return first
}
