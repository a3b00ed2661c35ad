package main

import (
	"context"
	"fmt"
	"path/filepath"

	"creditiq/pkg/core/agent"
	"creditiq/pkg/core/analysis"
	"creditiq/pkg/core/config"
	"creditiq/pkg/core/extract"
	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/pipeline"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/core/store"
	"creditiq/pkg/core/synthesis"
	"creditiq/pkg/core/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// AuditFileName is the batch audit log inside the results directory.
const AuditFileName = "audit_log.jsonl"

type app struct {
	cfg      config.Config
	log      *logrus.Entry
	agents   *agent.Manager
	prompts  *prompt.Registry
	edgar    *ingest.EDGARClient
	files    *store.FileStore
	audit    *store.AuditFile
	pool     *pgxpool.Pool
	orch     *pipeline.Orchestrator
	comparer *analysis.Comparer
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log := logging.New("creditiq")

	var routing agent.Config
	if cfg.LLM.AgentsFile != "" {
		r, err := agent.LoadConfig(cfg.LLM.AgentsFile)
		if err != nil {
			return nil, err
		}
		routing = r
	}
	agents, err := agent.NewManagerFromConfig(cfg.LLM, routing)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	prompts, err := prompt.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		agents:  agents,
		prompts: prompts,
		files:   store.NewFileStore(cfg.Store.ResultsDir, logging.New("store")),
		audit:   store.NewAuditFile(filepath.Join(cfg.Store.ResultsDir, AuditFileName)),
	}

	fetcher := ingest.NewFetcher(cfg.Ingest.UserAgent, cfg.Ingest.Timeout, cfg.Ingest.RequestsPerSecond)
	a.edgar = ingest.NewEDGARClient(fetcher)

	var (
		cache knowledge.IndexCache = knowledge.NewMemoryCache(cfg.RAG.IndexCacheTTL)
		sink  pipeline.Sink        = a.files
	)
	if cfg.Store.DatabaseURL != "" {
		if err := store.Migrate(ctx, cfg.Store.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := store.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		cache = knowledge.Tiered{cache, store.NewChunkRepo(pool)}
		sink = store.Multi{a.files, store.NewRunRepo(pool)}
		log.Info("postgres persistence enabled")
	}

	emb := agents.Embedder()
	engine := func(stage string) *knowledge.QueryEngine {
		return knowledge.NewQueryEngine(agents.For(stage), emb,
			knowledge.WithMaxAttempts(cfg.RAG.MaxAttempts),
			knowledge.WithMaxContextChars(cfg.RAG.MaxContextChars),
			knowledge.WithDefaults(cfg.LLM.Temperature, cfg.LLM.MaxTokens),
			knowledge.WithQueryLogger(logging.New("query").WithField("agent", stage)),
		)
	}
	gen := analysis.Generation{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens}

	stages := pipeline.Stages{
		Loader: ingest.NewLoader(fetcher, ingest.WithLogger(logging.New("ingest"))),
		Indexer: knowledge.NewIndexer(emb,
			knowledge.WithChunker(knowledge.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)),
			knowledge.WithBatchSize(cfg.RAG.EmbedBatchSize),
			knowledge.WithCache(cache),
			knowledge.WithIndexLogger(logging.New("index")),
		),
		Extractor: extract.NewExtractor(engine(agent.StageExtraction), prompts, cfg.RAG.ExtractionTopK, logging.New("extract")),
		Rater:     analysis.NewRater(agents.For(agent.StageAnalysis), prompts, gen, logging.New("analysis")),
		Verifier:  validate.NewVerifier(engine(agent.StageVerification), prompts, cfg.RAG.VerificationTopK, logging.New("verify")),
		Distiller: synthesis.NewDistiller(agents.For(agent.StageDistillation), prompts, cfg.LLM.Temperature, logging.New("distill")),
		Sections:  analysis.NewSectionAnalyzer(engine(agent.StageSections), prompts, cfg.RAG.SectionTopK, logging.New("sections")),
	}
	a.orch = pipeline.NewOrchestrator(stages,
		pipeline.WithSink(sink),
		pipeline.WithAudit(a.audit),
		pipeline.WithLogger(logging.New("pipeline")),
	)
	a.comparer = analysis.NewComparer(agents.For(agent.StageComparison), prompts, gen, logging.New("compare"))
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
