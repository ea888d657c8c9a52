// Package embedding turns text into vectors for the vector stores.
package embedding

import (
	"context"
	"fmt"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const (
	ProviderHashing = "hashing"
	ProviderOpenAI  = "openai"

	DefaultHashingDimension = 384
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultTimeout          = 30 * time.Second
)

// Config selects and configures a Provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

// New builds the provider named by cfg.Provider. An empty name selects hashing.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderHashing:
		return NewHashingProvider(cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an api key")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
