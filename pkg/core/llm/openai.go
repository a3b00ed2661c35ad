package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures any OpenAI-compatible endpoint: Azure OpenAI,
// api.openai.com, or vendors exposing the same wire format (DeepSeek, Qwen).
type OpenAIConfig struct {
	Kind           string // "azure", "openai", "deepseek", "qwen"
	APIKey         string
	BaseURL        string // Azure resource endpoint, or vendor base URL
	APIVersion     string // Azure only, e.g. "2024-02-01"
	ChatModel      string // model name, or Azure deployment name
	EmbeddingModel string // model name, or Azure deployment name
	Timeout        time.Duration
}

var vendorBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
}

// OpenAIProvider implements Provider and Embedder over go-openai.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Embedder = (*OpenAIProvider)(nil)
)

// NewOpenAIProvider creates a provider for the configured endpoint kind.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", config.kind())
	}

	var clientConfig openai.ClientConfig
	switch config.kind() {
	case "azure":
		if config.BaseURL == "" {
			return nil, fmt.Errorf("azure endpoint is required")
		}
		clientConfig = openai.DefaultAzureConfig(config.APIKey, config.BaseURL)
		if config.APIVersion != "" {
			clientConfig.APIVersion = config.APIVersion
		}
		// Deployment names are used verbatim.
		clientConfig.AzureModelMapperFunc = func(model string) string { return model }
	default:
		clientConfig = openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
		} else if u, ok := vendorBaseURLs[config.kind()]; ok {
			clientConfig.BaseURL = u
		}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

func (c OpenAIConfig) kind() string {
	if c.Kind == "" {
		return "openai"
	}
	return strings.ToLower(c.Kind)
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.config.kind()
}

func (p *OpenAIProvider) embeddingModel() string {
	if p.config.EmbeddingModel == "" {
		return string(openai.AdaEmbeddingV2)
	}
	return p.config.EmbeddingModel
}

func (p *OpenAIProvider) EmbeddingModelName() string {
	return p.Name() + "/" + p.embeddingModel()
}

// GenerateResponse sends a chat completion request.
func (p *OpenAIProvider) GenerateResponse(ctx context.Context, req Request) (string, error) {
	model := p.config.ChatModel
	if model == "" {
		model = openai.GPT4o
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage(),
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature(req.Temperature),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", p.Name())
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed requests embeddings for a batch of texts.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.embeddingModel()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embedding error: %w", p.Name(), classifyOpenAIError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.Name(), len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (p *OpenAIProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// temperature works around omitempty: a literal zero would be dropped from
// the request and the server default applied instead.
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %s", ErrContextLengthExceeded, apiErr.Message)
		}
	}
	if IsContextLengthError(err) {
		return fmt.Errorf("%w: %v", ErrContextLengthExceeded, err)
	}
	return fmt.Errorf("openai API error: %w", err)
}
