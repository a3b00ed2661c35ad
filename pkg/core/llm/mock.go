package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// MockProvider is a scriptable Provider for tests and dry runs.
type MockProvider struct {
	GenerateFunc func(ctx context.Context, req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) GenerateResponse(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// HashEmbedder is a deterministic bag-of-words embedder. Texts sharing words
// land close together, which is enough for offline retrieval.
type HashEmbedder struct {
	Dim int
}

var _ Embedder = HashEmbedder{}

func (h HashEmbedder) dim() int {
	if h.Dim <= 0 {
		return 256
	}
	return h.Dim
}

func (h HashEmbedder) EmbeddingModelName() string { return fmt.Sprintf("hash-%d", h.dim()) }

func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.dim()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dim)
		for _, tok := range tokenize(t) {
			hs := fnv.New32a()
			_, _ = hs.Write([]byte(tok))
			sum := hs.Sum32()
			vec[int(sum%uint32(dim))] += 1
		}
		// chromem normalises vectors; an all-zero vector would divide by zero.
		vec[0] += 0.01
		out[i] = vec
	}
	return out, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
