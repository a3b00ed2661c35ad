package knowledge

import (
	"context"
	"fmt"
	"strings"

	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts     = 3
	DefaultMaxContextChars = 96000

	contextSeparator = "\n\n"
)

// QueryOptions tune a single retrieval query.
type QueryOptions struct {
	TopK         int
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
	JSONMode     bool
}

// QueryEngine answers prompts from the chunks of an Index.
type QueryEngine struct {
	provider        llm.Provider
	embedder        llm.Embedder
	maxAttempts     int
	maxContextChars int
	temperature     float32
	maxTokens       int
	log             *logrus.Entry
}

// EngineOption configures a QueryEngine.
type EngineOption func(*QueryEngine)

// WithMaxAttempts bounds the generation calls of one query.
func WithMaxAttempts(n int) EngineOption {
	return func(e *QueryEngine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithMaxContextChars bounds the assembled context.
func WithMaxContextChars(n int) EngineOption {
	return func(e *QueryEngine) {
		if n > 0 {
			e.maxContextChars = n
		}
	}
}

// WithDefaults sets the temperature and token limit used by Query.
func WithDefaults(temperature float32, maxTokens int) EngineOption {
	return func(e *QueryEngine) {
		e.temperature = temperature
		e.maxTokens = maxTokens
	}
}

// WithQueryLogger sets the log entry.
func WithQueryLogger(l *logrus.Entry) EngineOption {
	return func(e *QueryEngine) { e.log = l }
}

// NewQueryEngine creates an engine that embeds prompts with embedder and
// answers with provider.
func NewQueryEngine(provider llm.Provider, embedder llm.Embedder, opts ...EngineOption) *QueryEngine {
	e := &QueryEngine{
		provider:        provider,
		embedder:        embedder,
		maxAttempts:     DefaultMaxAttempts,
		maxContextChars: DefaultMaxContextChars,
		temperature:     0.1,
		maxTokens:       3000,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.OrDiscard(e.log)
	return e
}

// Query runs prompt against ix with the engine defaults.
func (e *QueryEngine) Query(ctx context.Context, ix *Index, prompt string, topK int) llm.Result {
	return e.Run(ctx, ix, prompt, QueryOptions{TopK: topK, Temperature: e.temperature, MaxTokens: e.maxTokens})
}

type retryState int

const (
	stateAttempt retryState = iota
	stateShrink
	stateGiveUp
	stateDone
)

// Run retrieves the nearest chunks, assembles a bounded context and asks the
// provider. When the provider reports the context is too long the query is
// retried with one chunk fewer, down to a single chunk and at most
// maxAttempts calls; after that it gives up with llm.UnableToProcess.
func (e *QueryEngine) Run(ctx context.Context, ix *Index, prompt string, opts QueryOptions) llm.Result {
	if ix == nil {
		return llm.Result{Status: llm.StatusNoIndex}
	}
	log := e.log.WithField("top_k", opts.TopK)

	vecs, err := e.embedder.Embed(ctx, []string{prompt})
	if err == nil && len(vecs) != 1 {
		err = fmt.Errorf("embedder returned %d vectors for 1 prompt", len(vecs))
	}
	if err != nil {
		log.WithError(err).Error("query embedding failed")
		return llm.Result{Status: llm.StatusFailed, Err: fmt.Errorf("embed query: %w", err)}
	}

	k := opts.TopK
	if k > ix.Count() {
		k = ix.Count()
	}
	if k < 1 {
		k = 1
	}

	var (
		state    = stateAttempt
		attempts int
		answer   string
		lastErr  error
	)
	for {
		switch state {
		case stateAttempt:
			attempts++
			hits, err := ix.Search(ctx, vecs[0], k)
			if err != nil {
				log.WithError(err).Error("retrieval failed")
				return llm.Result{Status: llm.StatusFailed, Err: err, Attempts: attempts, TopK: k}
			}
			answer, err = e.provider.GenerateResponse(ctx, llm.Request{
				SystemPrompt: opts.SystemPrompt,
				Context:      AssembleContext(hits, e.maxContextChars),
				Prompt:       prompt,
				Temperature:  opts.Temperature,
				MaxTokens:    opts.MaxTokens,
				JSONMode:     opts.JSONMode,
			})
			switch {
			case err == nil:
				state = stateDone
			case llm.IsContextLengthError(err):
				lastErr = err
				state = stateShrink
			default:
				log.WithError(err).WithField("provider", e.provider.Name()).Error("generation failed")
				return llm.Result{Status: llm.StatusFailed, Err: err, Attempts: attempts, TopK: k}
			}

		case stateShrink:
			if k > 1 && attempts < e.maxAttempts {
				log.WithFields(logrus.Fields{"attempt": attempts, "next_top_k": k - 1}).Warn("context too long, retrying with fewer chunks")
				k--
				state = stateAttempt
			} else {
				state = stateGiveUp
			}

		case stateGiveUp:
			log.WithField("attempts", attempts).Warn("giving up on query")
			return llm.Result{Text: llm.UnableToProcess, Status: llm.StatusExhausted, Err: lastErr, Attempts: attempts, TopK: k}

		case stateDone:
			return llm.Result{Text: answer, Status: llm.StatusOK, Attempts: attempts, TopK: k}
		}
	}
}

// AssembleContext joins hits in order while they fit in maxChars runes. A
// first hit that alone exceeds the budget is truncated.
func AssembleContext(hits []Hit, maxChars int) string {
	var b strings.Builder
	used := 0
	for i, h := range hits {
		text := []rune(h.Chunk.Text)
		cost := len(text)
		if i > 0 {
			cost += len(contextSeparator)
		}
		if maxChars > 0 && used+cost > maxChars {
			if i == 0 {
				b.WriteString(string(text[:maxChars]))
			}
			break
		}
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(string(text))
		used += cost
	}
	return b.String()
}
