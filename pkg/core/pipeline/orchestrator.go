// Package pipeline runs a filing through load, index, extraction, ratio
// calculation, analysis, verification and distillation, and collects what
// every stage produced into a RunResult.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"creditiq/pkg/core/analysis"
	"creditiq/pkg/core/calc"
	"creditiq/pkg/core/extract"
	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/synthesis"
	"creditiq/pkg/core/validate"
	"creditiq/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DocumentLoader produces the text of a source.
type DocumentLoader interface {
	Load(ctx context.Context, src ingest.Source) (*ingest.Document, error)
}

// IndexBuilder indexes a document. A nil index means there was nothing to index.
type IndexBuilder interface {
	BuildIndex(ctx context.Context, doc *ingest.Document) (*knowledge.Index, error)
}

type RecordExtractor interface {
	Extract(ctx context.Context, ix *knowledge.Index) (*models.FinancialRecord, llm.Result, error)
}

type RecordRater interface {
	Rate(ctx context.Context, rec *models.FinancialRecord) llm.Result
}

type RecordVerifier interface {
	Verify(ctx context.Context, ix *knowledge.Index, rec *models.FinancialRecord) (*validate.VerificationReport, llm.Result)
}

type SummaryDistiller interface {
	Distill(ctx context.Context, rating string) (*synthesis.Distillation, llm.Result)
}

type SectionWriter interface {
	Analyze(ctx context.Context, ix *knowledge.Index) analysis.Sections
}

// Sink persists finished runs.
type Sink interface {
	Save(ctx context.Context, res *RunResult) error
}

// Stages are the collaborators of a run. Sections is optional.
type Stages struct {
	Loader    DocumentLoader
	Indexer   IndexBuilder
	Extractor RecordExtractor
	Rater     RecordRater
	Verifier  RecordVerifier
	Distiller SummaryDistiller
	Sections  SectionWriter
}

// Event is an advisory progress notice.
type Event struct {
	RunID   string     `json:"run_id"`
	Stage   State      `json:"stage"`
	Message string     `json:"message"`
	Done    int        `json:"done,omitempty"`
	Total   int        `json:"total,omitempty"`
	Result  *RunResult `json:"result,omitempty"`
}

// Observer receives events. It is called synchronously from the run.
type Observer func(Event)

// Orchestrator executes runs. It holds no per-run state, so one value may
// serve concurrent runs.
type Orchestrator struct {
	stages   Stages
	sink     Sink
	audit    AuditLog
	observer Observer
	log      *logrus.Entry
	now      func() time.Time
	newID    func() string
}

type Option func(*Orchestrator)

func WithSink(s Sink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithAudit appends one entry per batch run to a.
func WithAudit(a AuditLog) Option { return func(o *Orchestrator) { o.audit = a } }

func WithObserver(fn Observer) Option { return func(o *Orchestrator) { o.observer = fn } }

func WithLogger(e *logrus.Entry) Option { return func(o *Orchestrator) { o.log = e } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func NewOrchestrator(stages Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages: stages,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logging.OrDiscard(o.log)
	return o
}

// run carries the state of one execution.
type run struct {
	o   *Orchestrator
	src ingest.Source
	m   *machine
	res *RunResult
	log *logrus.Entry
	obs Observer
}

func (r *run) enter(to State, msg string) {
	if err := r.m.advance(to); err != nil {
		r.log.WithError(err).Error("pipeline state machine rejected transition")
		return
	}
	r.res.State = r.m.state
	r.log = r.log.WithField("stage", string(to))
	r.emit(Event{Stage: to, Message: msg})
}

func (r *run) emit(ev Event) {
	ev.RunID = r.res.RunID
	if r.o.observer != nil {
		r.o.observer(ev)
	}
	if r.obs != nil {
		r.obs(ev)
	}
}

// fail moves the run to Failed and fills every later field with placeholder.
func (r *run) fail(err error, placeholder string) {
	r.res.Error = err.Error()
	if r.res.Step2Analysis == "" {
		r.res.Step2Analysis = placeholder
	}
	if r.res.Step3Verification == "" {
		r.res.Step3Verification = placeholder
	}
	if r.res.Step4ExtractSummary == "" {
		r.res.Step4ExtractSummary = placeholder
	}
	r.enter(StateFailed, err.Error())
	r.res.FailedStage = r.m.failedAt
	r.log.WithError(err).Error("pipeline run failed")
}

// Run executes the pipeline for src. It always returns a result: failures
// are recorded in it, never returned.
func (o *Orchestrator) Run(ctx context.Context, src ingest.Source) *RunResult {
	return o.RunObserved(ctx, src, nil)
}

// RunObserved is Run with an extra observer for this run only.
func (o *Orchestrator) RunObserved(ctx context.Context, src ingest.Source, obs Observer) *RunResult {
	r := &run{
		o:   o,
		src: src,
		m:   newMachine(),
		obs: obs,
		res: &RunResult{
			RunID:     o.newID(),
			URL:       src.Identifier(),
			Timestamp: o.now().UTC(),
			State:     StateIdle,
			Statuses:  map[string]llm.Status{},
		},
	}
	r.log = o.log.WithFields(logrus.Fields{"run_id": r.res.RunID, "source": r.res.URL})
	o.execute(ctx, r)

	if o.sink != nil {
		if err := o.sink.Save(ctx, r.res); err != nil {
			r.log.WithError(err).Error("saving run results failed")
			r.res.Statuses[StageStorage] = llm.StatusFailed
		} else {
			r.res.Statuses[StageStorage] = llm.StatusOK
		}
	}
	r.emit(Event{Stage: r.res.State, Message: "run finished", Result: r.res})
	return r.res
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	res := r.res
	st := o.stages

	r.enter(StateLoading, "loading document")
	doc, err := st.Loader.Load(ctx, r.src)
	if err != nil {
		res.Statuses[StageLoading] = llm.StatusFailed
		res.Step1Extraction = errorJSON("Failed to load document: " + err.Error())
		r.fail(err, LoadFailedPlaceholder)
		return
	}
	res.Statuses[StageLoading] = llm.StatusOK

	r.enter(StateIndexing, "building vector index")
	ix, err := st.Indexer.BuildIndex(ctx, doc)
	switch {
	case err != nil:
		r.log.WithError(err).Error("index build failed, continuing without index")
		res.Statuses[StageIndexing] = llm.StatusFailed
		res.Warnings = append(res.Warnings, "index build failed: "+err.Error())
		ix = nil
	case ix == nil:
		res.Statuses[StageIndexing] = llm.StatusNoIndex
	default:
		res.Statuses[StageIndexing] = llm.StatusOK
		r.emit(Event{Stage: StateIndexing, Message: "index ready", Done: ix.Count(), Total: ix.Count()})
	}

	if st.Sections != nil {
		sections := st.Sections.Analyze(ctx, ix)
		res.Sections = &sections
		res.Statuses[StageSections] = statusFor(ix)
	}

	r.enter(StateExtracting, "extracting financial record")
	rec, exRes, err := st.Extractor.Extract(ctx, ix)
	res.Statuses[StageExtraction] = exRes.Status
	if err != nil {
		if ix == nil {
			res.Step1Extraction = errorJSON(NoIndexPlaceholder)
			res.Step2Analysis = NoIndexPlaceholder
			res.Step3Verification = NoSourcePlaceholder
			res.Step4ExtractSummary = NoIndexPlaceholder
			res.Statuses[StageAnalysis] = llm.StatusNoIndex
			res.Statuses[StageVerification] = llm.StatusNoIndex
			res.Statuses[StageDistillation] = llm.StatusNoIndex
			r.fail(err, NoIndexPlaceholder)
			return
		}
		var decErr *extract.DecodeError
		if errors.As(err, &decErr) {
			b, _ := json.Marshal(decErr)
			res.Step1Extraction = b
		} else {
			res.Step1Extraction = errorJSON(err.Error())
		}
		res.Statuses[StageAnalysis] = llm.StatusSkipped
		res.Statuses[StageVerification] = llm.StatusSkipped
		res.Statuses[StageDistillation] = llm.StatusSkipped
		r.fail(err, SkippedPlaceholder)
		return
	}

	r.enter(StateCalculating, "deriving ratios")
	rec = calc.FillRatios(rec)
	if check := calc.CheckConsistency(rec); !check.Consistent {
		res.Warnings = append(res.Warnings, check.Warnings...)
	}
	res.Step1Extraction = json.RawMessage(rec.JSON())

	r.enter(StateAnalyzing, "writing rating summary")
	rating := st.Rater.Rate(ctx, rec)
	res.Statuses[StageAnalysis] = rating.Status
	res.Step2Analysis = rating.TextOr(NoRatingPlaceholder)
	if rating.OK() {
		if g, ok := analysis.ParseRatingGuidance(rating.Text); ok {
			res.Rating = g
		}
	}

	r.enter(StateVerifying, "cross-checking figures")
	report, vRes := st.Verifier.Verify(ctx, ix, rec)
	res.Statuses[StageVerification] = vRes.Status
	res.Step3Verification = vRes.TextOr(NoSourcePlaceholder)
	res.Verification = report

	r.enter(StateDistilling, "distilling summary")
	if rating.OK() && rating.Text != "" {
		dist, dRes := st.Distiller.Distill(ctx, rating.Text)
		res.Statuses[StageDistillation] = dRes.Status
		res.Step4ExtractSummary = dRes.TextOr(NoRatingPlaceholder)
		res.Distillation = dist
	} else {
		res.Statuses[StageDistillation] = llm.StatusSkipped
		res.Step4ExtractSummary = NoRatingPlaceholder
	}

	r.enter(StateDone, "complete")
	r.log.WithField("warnings", len(res.Warnings)).Info("pipeline run complete")
}

func statusFor(ix *knowledge.Index) llm.Status {
	if ix == nil {
		return llm.StatusNoIndex
	}
	return llm.StatusOK
}
