package ai

import (
	"errors"
	"strings"

	"github.com/hrygo/recall/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // ollama, openai
	Model      string // nomic-embed-text:latest
	Dimensions int    // 768
	APIKey     string
	BaseURL    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider     string // ollama, openai
	Model        string // llama3.2:1b
	SummaryModel string // llama3.2:1b
	APIKey       string
	BaseURL      string
}

// NewConfigFromProfile creates AI config from profile.
// The profile always targets a local Ollama instance.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      p.EmbeddingModel,
			Dimensions: p.EmbeddingDimensions,
			BaseURL:    p.OllamaBaseURL,
		},
		LLM: LLMConfig{
			Provider:     "ollama",
			Model:        p.ChatModel,
			SummaryModel: p.SummaryModel,
			BaseURL:      p.OllamaBaseURL,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}

// ollamaOpenAIBaseURL returns the OpenAI compatible endpoint of an Ollama server.
func ollamaOpenAIBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}
