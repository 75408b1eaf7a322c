package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/cinesense/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	p := &profile.Profile{
		EmbeddingBackend:    BackendRemote,
		EmbeddingModel:      "sentence-transformers/all-MiniLM-L6-v2",
		EmbeddingDimensions: 384,
		EmbeddingAPIKey:     "emb-key",
		EmbeddingBaseURL:    "https://api.siliconflow.cn/v1",
		OllamaBaseURL:       "http://localhost:11434",
		LLMProvider:         "deepseek",
		LLMModel:            "deepseek-chat",
		LLMAPIKey:           "llm-key",
	}

	cfg := NewConfigFromProfile(p)
	assert.Equal(t, BackendRemote, cfg.Embedding.Backend)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, "https://api.deepseek.com", cfg.LLM.BaseURL)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.4, cfg.LLM.Temperature, 1e-6)
	assert.True(t, cfg.LLM.IsConfigured())

	p.LLMProvider = "ollama"
	p.LLMAPIKey = ""
	cfg = NewConfigFromProfile(p)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.True(t, cfg.LLM.IsConfigured())
}

func TestLLMConfig_IsConfigured(t *testing.T) {
	var nilCfg *LLMConfig
	assert.False(t, nilCfg.IsConfigured())
	assert.False(t, (&LLMConfig{}).IsConfigured())
	assert.False(t, (&LLMConfig{Provider: "openai"}).IsConfigured())
	assert.True(t, (&LLMConfig{Provider: "openai", APIKey: "k"}).IsConfigured())
	assert.False(t, (&LLMConfig{Provider: "ollama"}).IsConfigured())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		embedding EmbeddingConfig
		wantErr   bool
	}{
		{
			name:      "remote ok",
			embedding: EmbeddingConfig{Backend: BackendRemote, Model: "m", Dimensions: 384, APIKey: "k"},
		},
		{
			name:      "local ok",
			embedding: EmbeddingConfig{Backend: BackendLocal, Model: "m", Dimensions: 384, OllamaURL: "http://localhost:11434"},
		},
		{
			name:      "missing model",
			embedding: EmbeddingConfig{Backend: BackendRemote, Dimensions: 384, APIKey: "k"},
			wantErr:   true,
		},
		{
			name:      "zero dimensions",
			embedding: EmbeddingConfig{Backend: BackendRemote, Model: "m", APIKey: "k"},
			wantErr:   true,
		},
		{
			name:      "remote without key",
			embedding: EmbeddingConfig{Backend: BackendRemote, Model: "m", Dimensions: 384},
			wantErr:   true,
		},
		{
			name:      "local without server",
			embedding: EmbeddingConfig{Backend: BackendLocal, Model: "m", Dimensions: 384},
			wantErr:   true,
		},
		{
			name:      "unknown backend",
			embedding: EmbeddingConfig{Backend: "tpu", Model: "m", Dimensions: 384},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Embedding: tt.embedding}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
