package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrContextLengthExceeded is returned by a Provider when the assembled input
// does not fit in the model's context window. The query engine shrinks the
// retrieval breadth on this error; every other error is terminal for a query.
var ErrContextLengthExceeded = errors.New("llm: context length exceeded")

// Request is a single generation call.
type Request struct {
	SystemPrompt string
	Context      string // retrieved source text, empty for direct generation
	Prompt       string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, req Request) (string, error)
	Name() string
}

// Embedder turns text into fixed-dimension vectors. Implementations must
// return exactly one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingModeler is implemented by embedders that can name the model
// behind their vectors.
type EmbeddingModeler interface {
	EmbeddingModelName() string
}

// EmbeddingModel names the model behind e. Vectors of different models
// cannot share an index.
func EmbeddingModel(e Embedder) string {
	if m, ok := e.(EmbeddingModeler); ok {
		return m.EmbeddingModelName()
	}
	return fmt.Sprintf("%T", e)
}

// UserMessage combines retrieved context and the prompt the way every
// provider sends it.
func (r Request) UserMessage() string {
	if strings.TrimSpace(r.Context) == "" {
		return r.Prompt
	}
	var b strings.Builder
	b.WriteString("Context information is below.\n---------------------\n")
	b.WriteString(r.Context)
	b.WriteString("\n---------------------\nGiven the context information and not prior knowledge, answer the query.\nQuery: ")
	b.WriteString(r.Prompt)
	b.WriteString("\nAnswer: ")
	return b.String()
}

// contextLengthMarkers are fragments providers use in capacity errors.
var contextLengthMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"context size",
	"context window",
	"exceeds the maximum number of tokens",
	"input token count",
	"too many tokens",
}

// IsContextLengthError reports whether err signals an input-capacity problem,
// either as ErrContextLengthExceeded or by a provider's error text.
func IsContextLengthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContextLengthExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range contextLengthMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
