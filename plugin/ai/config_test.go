package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/recall/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	prof := &profile.Profile{
		OllamaBaseURL:       "http://127.0.0.1:11434",
		ChatModel:           "llama3.2:1b",
		SummaryModel:        "qwen2.5:0.5b",
		EmbeddingModel:      "nomic-embed-text:latest",
		EmbeddingDimensions: 768,
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text:latest", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.2:1b", cfg.LLM.Model)
	assert.Equal(t, "qwen2.5:0.5b", cfg.LLM.SummaryModel)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Embedding: EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"},
			LLM:       LLMConfig{Provider: "ollama", Model: "llama3.2:1b"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing embedding provider", mutate: func(c *Config) { c.Embedding.Provider = "" }, wantErr: true},
		{name: "missing embedding model", mutate: func(c *Config) { c.Embedding.Model = "" }, wantErr: true},
		{name: "openai embedding without key", mutate: func(c *Config) { c.Embedding.Provider = "openai" }, wantErr: true},
		{name: "missing llm provider", mutate: func(c *Config) { c.LLM.Provider = "" }, wantErr: true},
		{name: "missing llm model", mutate: func(c *Config) { c.LLM.Model = "" }, wantErr: true},
		{name: "openai llm without key", mutate: func(c *Config) { c.LLM.Provider = "openai" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Equal(t, tt.wantErr, cfg.Validate() != nil)
		})
	}
}

func TestOllamaOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:11434/v1", ollamaOpenAIBaseURL(""))
	assert.Equal(t, "http://host:11434/v1", ollamaOpenAIBaseURL("http://host:11434/"))
	assert.Equal(t, "http://host:11434/v1", ollamaOpenAIBaseURL("http://host:11434/v1"))
}
