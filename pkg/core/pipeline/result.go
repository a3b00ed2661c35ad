package pipeline

import (
	"encoding/json"
	"time"

	"creditiq/pkg/core/analysis"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/synthesis"
	"creditiq/pkg/core/validate"
	"creditiq/pkg/models"
)

// Placeholders of degraded or skipped stages. Reporting code compares
// against these instead of checking for missing fields.
const (
	NoIndexPlaceholder    = analysis.NoIndexPlaceholder
	SkippedPlaceholder    = "Skipped: extraction did not produce a financial record"
	LoadFailedPlaceholder = "Skipped: document could not be loaded"
	NoRatingPlaceholder   = "Skipped: analysis did not produce a rating summary"
	NoSourcePlaceholder   = validate.NoSourcePlaceholder
)

// Stage keys of RunResult.Statuses.
const (
	StageLoading      = "loading"
	StageIndexing     = "indexing"
	StageExtraction   = "extraction"
	StageAnalysis     = "analysis"
	StageSections     = "sections"
	StageVerification = "verification"
	StageDistillation = "distillation"
	StageStorage      = "storage"
)

// RunResult is everything one run produced. Its JSON form is the
// complete_results artifact and the API response body.
type RunResult struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	Timestamp   time.Time `json:"timestamp"`
	State       State     `json:"state"`
	FailedStage State     `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`

	Step1Extraction     json.RawMessage `json:"step1_extraction"`
	Step2Analysis       string          `json:"step2_analysis"`
	Step3Verification   string          `json:"step3_verification"`
	Step4ExtractSummary string          `json:"step4_extract_summary"`

	Verification *validate.VerificationReport `json:"verification,omitempty"`
	Rating       *analysis.RatingGuidance     `json:"rating,omitempty"`
	Distillation *synthesis.Distillation      `json:"distillation,omitempty"`
	Sections     *analysis.Sections           `json:"sections,omitempty"`
	Warnings     []string                     `json:"warnings,omitempty"`
	Statuses     map[string]llm.Status        `json:"statuses"`
}

// Succeeded reports whether the run reached Done.
func (r *RunResult) Succeeded() bool { return r.State == StateDone }

// Record decodes the extracted record. It reports false when extraction
// failed and step1 holds an error object instead.
func (r *RunResult) Record() (*models.FinancialRecord, bool) {
	if r.FailedStage != "" || len(r.Step1Extraction) == 0 {
		return nil, false
	}
	var rec models.FinancialRecord
	if err := json.Unmarshal(r.Step1Extraction, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func errorJSON(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
