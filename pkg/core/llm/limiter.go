package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a provider. The same limiter guards
// generation and embedding when the wrapped value implements both.
type RateLimited struct {
	provider Provider
	embedder Embedder
	limiter  *rate.Limiter
}

// NewRateLimited wraps p with a token bucket of rps requests per second.
// A non-positive rps returns a wrapper that never waits.
func NewRateLimited(p Provider, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	rl := &RateLimited{provider: p, limiter: rate.NewLimiter(limit, burst)}
	if e, ok := p.(Embedder); ok {
		rl.embedder = e
	}
	return rl
}

func (r *RateLimited) Name() string { return r.provider.Name() }

func (r *RateLimited) GenerateResponse(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.provider.GenerateResponse(ctx, req)
}

// Embed forwards to the wrapped embedder.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%s does not provide embeddings", r.Name())
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.embedder.Embed(ctx, texts)
}

// EmbeddingModelName names the wrapped embedder's model.
func (r *RateLimited) EmbeddingModelName() string {
	if r.embedder == nil {
		return ""
	}
	return EmbeddingModel(r.embedder)
}

// CanEmbed reports whether the wrapped provider also embeds.
func (r *RateLimited) CanEmbed() bool { return r.embedder != nil }
