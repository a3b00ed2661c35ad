package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"creditiq/pkg/core/config"
	"creditiq/pkg/core/llm"

	"gopkg.in/yaml.v3"
)

// Pipeline stages that ask for a provider.
const (
	StageExtraction   = "extraction"
	StageAnalysis     = "analysis"
	StageVerification = "verification"
	StageDistillation = "distillation"
	StageSections     = "sections"
	StageComparison   = "comparison"
)

// Config routes stages to providers.
type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Description string `yaml:"description"`
}

// LoadConfig reads a YAML routing file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read agent config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse agent config %s: %w", path, err)
	}
	return cfg, nil
}

type Manager struct {
	mu        sync.RWMutex
	config    Config
	providers map[string]llm.Provider
	embedder  llm.Embedder
}

// NewManager creates a manager with no providers; use Register or
// NewManagerFromConfig.
func NewManager(config Config) *Manager {
	return &Manager{
		config:    config,
		providers: make(map[string]llm.Provider),
	}
}

// NewManagerFromConfig builds the configured provider, rate limited, and
// makes it the active one unless the routing config names another. Every
// other provider the routing names is built too, reading its key from
// <NAME>_API_KEY and its endpoint from <NAME>_ENDPOINT. A routed provider
// that cannot be built is an error.
func NewManagerFromConfig(cfg config.LLMConfig, routing Config) (*Manager, error) {
	p, emb, err := BuildProvider(cfg)
	if err != nil {
		return nil, err
	}
	routing = normalizeRouting(routing)
	if routing.ActiveProvider == "" {
		routing.ActiveProvider = p.Name()
	}
	m := NewManager(routing)
	m.Register(p)
	m.SetEmbedder(emb)

	for _, name := range routedProviders(routing) {
		if _, ok := m.providers[name]; ok {
			continue
		}
		rp, _, err := BuildProvider(routedConfig(cfg, name))
		if err != nil {
			return nil, fmt.Errorf("provider %q named by agent routing: %w", name, err)
		}
		if rp.Name() != name {
			return nil, fmt.Errorf("provider %q named by agent routing registers as %q", name, rp.Name())
		}
		m.Register(rp)
	}
	return m, nil
}

func normalizeRouting(c Config) Config {
	out := Config{ActiveProvider: strings.ToLower(strings.TrimSpace(c.ActiveProvider))}
	if len(c.Agents) > 0 {
		out.Agents = make(map[string]AgentConfig, len(c.Agents))
		for stage, a := range c.Agents {
			a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
			out.Agents[stage] = a
		}
	}
	return out
}

// routedProviders lists the provider names of c, sorted, without repeats.
func routedProviders(c Config) []string {
	seen := map[string]bool{}
	if c.ActiveProvider != "" {
		seen[c.ActiveProvider] = true
	}
	for _, a := range c.Agents {
		if a.Provider != "" {
			seen[a.Provider] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// routedConfig derives the config of a secondary provider. Limits and
// timeouts are shared with base; credentials and models are not.
func routedConfig(base config.LLMConfig, name string) config.LLMConfig {
	env := strings.ToUpper(name)
	return config.LLMConfig{
		Provider:          name,
		APIKey:            os.Getenv(env + "_API_KEY"),
		Endpoint:          os.Getenv(env + "_ENDPOINT"),
		APIVersion:        base.APIVersion,
		ChatDeployment:    os.Getenv(env + "_CHAT_MODEL"),
		Temperature:       base.Temperature,
		MaxTokens:         base.MaxTokens,
		RequestsPerSecond: base.RequestsPerSecond,
		Burst:             base.Burst,
		Timeout:           base.Timeout,
	}
}

// BuildProvider constructs the provider and embedder for one LLM config.
func BuildProvider(cfg config.LLMConfig) (llm.Provider, llm.Embedder, error) {
	kind := strings.ToLower(cfg.Provider)
	switch kind {
	case "mock":
		return &llm.MockProvider{}, llm.HashEmbedder{}, nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, nil, errors.New("gemini API key is required")
		}
		g := &llm.GeminiProvider{
			APIKey:         cfg.APIKey,
			Model:          cfg.ChatDeployment,
			EmbeddingModel: cfg.EmbeddingDeployment,
		}
		rl := llm.NewRateLimited(g, cfg.RequestsPerSecond, cfg.Burst)
		return rl, rl, nil
	case "azure", "openai", "deepseek", "qwen":
		o, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			Kind:           kind,
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.Endpoint,
			APIVersion:     cfg.APIVersion,
			ChatModel:      cfg.ChatDeployment,
			EmbeddingModel: cfg.EmbeddingDeployment,
			Timeout:        cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		rl := llm.NewRateLimited(o, cfg.RequestsPerSecond, cfg.Burst)
		return rl, rl, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Register adds or replaces a provider under its Name.
func (m *Manager) Register(p llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
}

func (m *Manager) SetEmbedder(e llm.Embedder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedder = e
}

func (m *Manager) Embedder() llm.Embedder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embedder
}

// GetProvider returns the provider for a stage: the stage override when it
// is registered, otherwise the active provider. Nil when neither exists.
func (m *Manager) GetProvider(stage string) llm.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 1. Check for stage-specific override
	if agentConfig, ok := m.config.Agents[stage]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p
		}
	}

	// 2. Use global active provider
	return m.providers[m.config.ActiveProvider]
}

// GetActiveProvider returns the name of the current global provider
func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// SetActiveProvider switches the global provider; it must be registered.
func (m *Manager) SetActiveProvider(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("provider %q is not registered", name)
	}
	m.config.ActiveProvider = name
	return nil
}

// Available lists registered provider names.
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for n := range m.providers {
		names = append(names, n)
	}
	return names
}

// ErrNoProvider is returned when a stage resolves to no registered provider.
var ErrNoProvider = errors.New("no provider registered for stage")

// For returns a Provider bound to stage. It resolves the stage's provider on
// every call, so SetActiveProvider also affects pipelines built earlier.
func (m *Manager) For(stage string) llm.Provider {
	return stageProvider{m: m, stage: stage}
}

type stageProvider struct {
	m     *Manager
	stage string
}

func (s stageProvider) Name() string {
	if p := s.m.GetProvider(s.stage); p != nil {
		return p.Name()
	}
	return "none"
}

func (s stageProvider) GenerateResponse(ctx context.Context, req llm.Request) (string, error) {
	p := s.m.GetProvider(s.stage)
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, s.stage)
	}
	return p.GenerateResponse(ctx, req)
}

// Routes reports the provider each configured stage resolves to.
func (m *Manager) Routes() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.config.Agents))
	for stage, a := range m.config.Agents {
		name := m.config.ActiveProvider
		if _, ok := m.providers[a.Provider]; ok && a.Provider != "" {
			name = a.Provider
		}
		out[stage] = name
	}
	return out
}
