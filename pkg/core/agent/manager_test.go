package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"creditiq/pkg/core/config"
	"creditiq/pkg/core/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider struct {
	llm.MockProvider
	name string
}

func (n *namedProvider) Name() string { return n.name }

func TestGetProviderRouting(t *testing.T) {
	m := NewManager(Config{
		ActiveProvider: "azure",
		Agents: map[string]AgentConfig{
			StageDistillation: {Provider: "gemini"},
			StageVerification: {Provider: "unregistered"},
		},
	})
	azure := &namedProvider{name: "azure"}
	gemini := &namedProvider{name: "gemini"}
	m.Register(azure)
	m.Register(gemini)

	assert.Same(t, azure, m.GetProvider(StageExtraction))
	assert.Same(t, gemini, m.GetProvider(StageDistillation))
	assert.Same(t, azure, m.GetProvider(StageVerification), "unknown override falls back to active")

	require.NoError(t, m.SetActiveProvider("gemini"))
	assert.Same(t, gemini, m.GetProvider(StageExtraction))
	assert.Error(t, m.SetActiveProvider("nope"))
	assert.ElementsMatch(t, []string{"azure", "gemini"}, m.Available())
}

func TestForFollowsActiveProvider(t *testing.T) {
	m := NewManager(Config{
		ActiveProvider: "azure",
		Agents:         map[string]AgentConfig{StageDistillation: {Provider: "gemini"}, StageAnalysis: {}},
	})
	bound := m.For(StageExtraction)
	assert.Equal(t, "none", bound.Name())
	_, err := bound.GenerateResponse(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, ErrNoProvider)

	azure := &namedProvider{name: "azure", MockProvider: llm.MockProvider{GenerateFunc: func(context.Context, llm.Request) (string, error) {
		return "from azure", nil
	}}}
	gemini := &namedProvider{name: "gemini", MockProvider: llm.MockProvider{GenerateFunc: func(context.Context, llm.Request) (string, error) {
		return "from gemini", nil
	}}}
	m.Register(azure)
	m.Register(gemini)

	out, err := bound.GenerateResponse(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "from azure", out)

	require.NoError(t, m.SetActiveProvider("gemini"))
	out, err = bound.GenerateResponse(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", out)
	assert.Equal(t, "gemini", bound.Name())

	assert.Equal(t, map[string]string{StageDistillation: "gemini", StageAnalysis: "gemini"}, m.Routes())
}

func TestNewManagerFromConfigMock(t *testing.T) {
	m, err := NewManagerFromConfig(config.LLMConfig{Provider: "mock"}, Config{})
	require.NoError(t, err)

	assert.Equal(t, "mock", m.GetActiveProvider())
	require.NotNil(t, m.GetProvider(StageAnalysis))
	require.NotNil(t, m.Embedder())

	vecs, err := m.Embedder().Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestNewManagerFromConfigBuildsRoutedProviders(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "k")
	m, err := NewManagerFromConfig(config.LLMConfig{Provider: "mock"}, Config{
		ActiveProvider: "mock",
		Agents:         map[string]AgentConfig{StageDistillation: {Provider: "DeepSeek"}},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"mock", "deepseek"}, m.Available())
	assert.Equal(t, "deepseek", m.GetProvider(StageDistillation).Name())
	assert.Equal(t, "mock", m.GetProvider(StageExtraction).Name())
	assert.Equal(t, map[string]string{StageDistillation: "deepseek"}, m.Routes())
	require.NoError(t, m.SetActiveProvider("deepseek"))
}

func TestNewManagerFromConfigRejectsUnbuildableRoute(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewManagerFromConfig(config.LLMConfig{Provider: "mock"}, Config{ActiveProvider: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `provider "gemini" named by agent routing`)

	_, err = NewManagerFromConfig(config.LLMConfig{Provider: "mock"}, Config{
		Agents: map[string]AgentConfig{StageVerification: {Provider: "telepathy"}},
	})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestBuildProviderAzureNeedsEndpoint(t *testing.T) {
	_, _, err := BuildProvider(config.LLMConfig{Provider: "azure", APIKey: "k"})
	assert.Error(t, err)

	p, e, err := BuildProvider(config.LLMConfig{Provider: "azure", APIKey: "k", Endpoint: "https://x.openai.azure.com"})
	require.NoError(t, err)
	assert.Equal(t, "azure", p.Name())
	assert.NotNil(t, e)

	_, _, err = BuildProvider(config.LLMConfig{Provider: "telepathy"})
	assert.Error(t, err)

	_, _, err = BuildProvider(config.LLMConfig{Provider: "gemini"})
	assert.ErrorContains(t, err, "gemini API key is required")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
active_provider: azure
agents:
  distillation:
    provider: gemini
    description: short summaries
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "azure", cfg.ActiveProvider)
	assert.Equal(t, "gemini", cfg.Agents[StageDistillation].Provider)
}
