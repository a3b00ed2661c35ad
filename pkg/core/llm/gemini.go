package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider and Embedder interfaces for Google's Gemini models.
type GeminiProvider struct {
	APIKey         string
	Model          string // e.g. "gemini-2.0-flash"
	EmbeddingModel string // e.g. "text-embedding-004"

	once    sync.Once
	client  *genai.Client
	initErr error
}

// Ensure interface compliance
var (
	_ Provider = (*GeminiProvider)(nil)
	_ Embedder = (*GeminiProvider)(nil)
)

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) embeddingModel() string {
	if p.EmbeddingModel == "" {
		return "text-embedding-004"
	}
	return p.EmbeddingModel
}

func (p *GeminiProvider) EmbeddingModelName() string { return "gemini/" + p.embeddingModel() }

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		if p.APIKey == "" {
			p.initErr = fmt.Errorf("gemini API key not set")
			return
		}
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if p.initErr != nil {
			p.initErr = fmt.Errorf("failed to create GenAI client: %w", p.initErr)
		}
	})
	return p.client, p.initErr
}

// GenerateResponse sends a generateContent request to the Gemini API using the official GenAI SDK.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, req Request) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	model := p.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature), // SDK expects *float32
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(req.UserMessage()), config)
	if err != nil {
		if IsContextLengthError(err) {
			return "", fmt.Errorf("%w: %v", ErrContextLengthExceeded, err)
		}
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return strings.TrimSpace(result.Text()), nil
}

// Embed calls embedContent with one content per input text.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	model := p.embeddingModel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
