// Package config loads the run configuration from defaults, an optional YAML
// file, a .env file and CREDITIQ_* environment variables, in rising priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. CREDITIQ_LLM_PROVIDER.
const EnvPrefix = "CREDITIQ"

// Config is passed by value into every constructor that needs settings.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	LLM      LLMConfig    `mapstructure:"llm" yaml:"llm"`
	RAG      RAGConfig    `mapstructure:"rag" yaml:"rag"`
	Ingest   IngestConfig `mapstructure:"ingest" yaml:"ingest"`
	Store    StoreConfig  `mapstructure:"store" yaml:"store"`
}

// LLMConfig selects the generation and embedding endpoints.
type LLMConfig struct {
	Provider            string        `mapstructure:"provider" yaml:"provider"` // azure, openai, deepseek, qwen, gemini, mock
	Endpoint            string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey              string        `mapstructure:"api_key" yaml:"-"`
	APIVersion          string        `mapstructure:"api_version" yaml:"api_version"`
	ChatDeployment      string        `mapstructure:"chat_deployment" yaml:"chat_deployment"`
	EmbeddingDeployment string        `mapstructure:"embedding_deployment" yaml:"embedding_deployment"`
	Temperature         float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst               int           `mapstructure:"burst" yaml:"burst"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AgentsFile          string        `mapstructure:"agents_file" yaml:"agents_file"`
}

// RAGConfig tunes chunking and retrieval.
type RAGConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap     int           `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	EmbedBatchSize   int           `mapstructure:"embed_batch_size" yaml:"embed_batch_size"`
	ExtractionTopK   int           `mapstructure:"extraction_top_k" yaml:"extraction_top_k"`
	VerificationTopK int           `mapstructure:"verification_top_k" yaml:"verification_top_k"`
	SectionTopK      int           `mapstructure:"section_top_k" yaml:"section_top_k"`
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxContextChars  int           `mapstructure:"max_context_chars" yaml:"max_context_chars"`
	IndexCacheTTL    time.Duration `mapstructure:"index_cache_ttl" yaml:"index_cache_ttl"`
}

// IngestConfig controls document fetching.
type IngestConfig struct {
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// StoreConfig locates run artifacts.
type StoreConfig struct {
	ResultsDir  string `mapstructure:"results_dir" yaml:"results_dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:            "azure",
			APIVersion:          "2024-02-01",
			ChatDeployment:      "dev-gpt-4o",
			EmbeddingDeployment: "text-embedding-ada-002",
			Temperature:         0,
			MaxTokens:           4000,
			RequestsPerSecond:   2,
			Burst:               2,
			Timeout:             2 * time.Minute,
		},
		RAG: RAGConfig{
			ChunkSize:        1024,
			ChunkOverlap:     256,
			EmbedBatchSize:   16,
			ExtractionTopK:   15,
			VerificationTopK: 20,
			SectionTopK:      3,
			MaxAttempts:      3,
			MaxContextChars:  96000,
			IndexCacheTTL:    time.Hour,
		},
		Ingest: IngestConfig{
			UserAgent:         "CreditIQ/1.0 (credit-compliance@example.com)",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 8, // SEC fair-access limit is 10/s
		},
		Store: StoreConfig{
			ResultsDir: "financial_analysis_output",
		},
	}
}

// SetDefaults registers Default() on v so that every key is known to viper
// and therefore resolvable from the environment.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.api_version", d.LLM.APIVersion)
	v.SetDefault("llm.chat_deployment", d.LLM.ChatDeployment)
	v.SetDefault("llm.embedding_deployment", d.LLM.EmbeddingDeployment)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.agents_file", d.LLM.AgentsFile)

	v.SetDefault("rag.chunk_size", d.RAG.ChunkSize)
	v.SetDefault("rag.chunk_overlap", d.RAG.ChunkOverlap)
	v.SetDefault("rag.embed_batch_size", d.RAG.EmbedBatchSize)
	v.SetDefault("rag.extraction_top_k", d.RAG.ExtractionTopK)
	v.SetDefault("rag.verification_top_k", d.RAG.VerificationTopK)
	v.SetDefault("rag.section_top_k", d.RAG.SectionTopK)
	v.SetDefault("rag.max_attempts", d.RAG.MaxAttempts)
	v.SetDefault("rag.max_context_chars", d.RAG.MaxContextChars)
	v.SetDefault("rag.index_cache_ttl", d.RAG.IndexCacheTTL)

	v.SetDefault("ingest.user_agent", d.Ingest.UserAgent)
	v.SetDefault("ingest.timeout", d.Ingest.Timeout)
	v.SetDefault("ingest.requests_per_second", d.Ingest.RequestsPerSecond)

	v.SetDefault("store.results_dir", d.Store.ResultsDir)
	v.SetDefault("store.database_url", d.Store.DatabaseURL)
}

// Load reads .env files (missing ones are ignored), wires environment
// variables into v and decodes the result. The caller may already have
// pointed v at a config file and bound CLI flags.
func Load(v *viper.Viper, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			logrus.WithField("file", f).Debug("env file not loaded")
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional variable names used by the providers' own tooling.
	_ = v.BindEnv("llm.endpoint", EnvPrefix+"_LLM_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "AZURE_OPENAI_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.chat_deployment", EnvPrefix+"_LLM_CHAT_DEPLOYMENT", "AZURE_OPENAI_DEPLOYMENT")
	_ = v.BindEnv("store.database_url", EnvPrefix+"_STORE_DATABASE_URL", "DATABASE_URL")

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

var knownProviders = map[string]bool{
	"azure": true, "openai": true, "deepseek": true, "qwen": true, "gemini": true, "mock": true,
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	p := strings.ToLower(c.LLM.Provider)
	if !knownProviders[p] {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if p != "mock" && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required"))
	}
	if p == "azure" {
		if c.LLM.Endpoint == "" {
			errs = append(errs, errors.New("llm.endpoint is required for azure"))
		}
		if c.LLM.ChatDeployment == "" || c.LLM.EmbeddingDeployment == "" {
			errs = append(errs, errors.New("llm.chat_deployment and llm.embedding_deployment are required for azure"))
		}
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("rag.chunk_size must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 {
		errs = append(errs, errors.New("rag.chunk_overlap must not be negative"))
	}
	if c.RAG.MaxAttempts < 1 {
		errs = append(errs, errors.New("rag.max_attempts must be at least 1"))
	}
	if c.Store.ResultsDir == "" {
		errs = append(errs, errors.New("store.results_dir is required"))
	}
	return errors.Join(errs...)
}
