package ai

import (
	"errors"
	"fmt"

	"github.com/hrygo/cinesense/internal/profile"
)

// Embedding backends.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
// Both backends must serve the same model so profile and index vectors stay comparable.
type EmbeddingConfig struct {
	Backend    string // remote, local
	Model      string // sentence-transformers/all-MiniLM-L6-v2
	Dimensions int    // 384
	APIKey     string
	BaseURL    string // remote inference endpoint
	OllamaURL  string // local model server
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, ollama
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 4096
	Temperature float32 // default: 0.4
}

// IsConfigured reports whether the LLM can be reached with the given credentials.
func (c *LLMConfig) IsConfigured() bool {
	if c == nil || c.Provider == "" {
		return false
	}
	if c.Provider == "ollama" {
		return c.BaseURL != ""
	}
	return c.APIKey != ""
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Backend:    p.EmbeddingBackend,
			Model:      p.EmbeddingModel,
			Dimensions: p.EmbeddingDimensions,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			OllamaURL:  p.OllamaBaseURL,
		},
		LLM: LLMConfig{
			Provider:    p.LLMProvider,
			Model:       p.LLMModel,
			APIKey:      p.LLMAPIKey,
			BaseURL:     p.LLMBaseURL,
			MaxTokens:   4096,
			Temperature: 0.4,
		},
	}

	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = p.OllamaBaseURL
	}
	if cfg.LLM.Provider == "deepseek" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.deepseek.com"
	}

	return cfg
}

// Validate validates the embedding configuration.
// The LLM section is optional: without it the oracle runs degraded.
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	switch c.Embedding.Backend {
	case BackendRemote:
		if c.Embedding.APIKey == "" {
			return errors.New("embedding API key is required for the remote backend")
		}
	case BackendLocal:
		if c.Embedding.OllamaURL == "" {
			return errors.New("ollama base URL is required for the local backend")
		}
	default:
		return fmt.Errorf("unsupported embedding backend: %s", c.Embedding.Backend)
	}

	return nil
}
