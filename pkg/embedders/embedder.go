// Package embedders generates embedding vectors for document chunks
// and queries.
package embedders

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridiandb/meridian/pkg/retry"
)

// Provider generates embeddings for a single model.
type Provider interface {
	// Embed returns the embedding vector for one text.
	Embed(text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(texts []string) ([][]float32, error)

	// GetDimension returns the vector dimension this provider emits.
	GetDimension() int

	// GetModelName returns the model identifier.
	GetModelName() string

	// Close releases provider resources.
	Close() error
}

// ProviderError reports a failure from an embedding backend.
type ProviderError struct {
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding provider %s (model %s): %s: %v", e.Provider, e.Model, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding provider %s (model %s): %s", e.Provider, e.Model, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, model, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Message: message, Err: err}
}

// Config holds embedding provider settings.
type Config struct {
	// Type selects the backend: "local" or "openai".
	Type string `yaml:"type,omitempty" mapstructure:"type"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty" mapstructure:"model"`

	// Dimension is the expected vector dimension.
	Dimension int `yaml:"dimension,omitempty" mapstructure:"dimension"`

	// APIKey authenticates against remote backends.
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Host overrides the backend base URL.
	Host string `yaml:"host,omitempty" mapstructure:"host"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" mapstructure:"timeout"`

	// BatchSize caps the number of texts per backend request.
	BatchSize int `yaml:"batch_size,omitempty" mapstructure:"batch_size"`

	// MaxBatchTokens caps the token total per backend request.
	MaxBatchTokens int `yaml:"max_batch_tokens,omitempty" mapstructure:"max_batch_tokens"`

	// Retry governs backoff for transient backend failures.
	Retry retry.Policy `yaml:"retry,omitempty" mapstructure:"retry"`
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "local"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension <= 0 {
		c.Dimension = defaultDimension(c.Model)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxBatchTokens <= 0 {
		c.MaxBatchTokens = 8000
	}
	c.Retry.SetDefaults()
}

// Validate checks provider settings.
func (c *Config) Validate() error {
	switch c.Type {
	case "local", "openai":
	default:
		return fmt.Errorf("unsupported embedder type: %s", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Dimension)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("API key is required for OpenAI embedder")
	}
	return nil
}

func defaultDimension(model string) int {
	switch model {
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Source hands out providers keyed by model and dimension, creating
// and caching them on first use. Without an API key every model is
// served by the local deterministic provider, so ingestion and search
// remain usable in development.
type Source struct {
	mu        sync.RWMutex
	providers map[string]Provider
	apiKey    string
	host      string
	base      Config
}

// NewSource creates a provider source. base supplies shared settings;
// its Model and Dimension are overridden per request.
func NewSource(base Config) *Source {
	base.SetDefaults()
	return &Source{
		providers: make(map[string]Provider),
		apiKey:    base.APIKey,
		host:      base.Host,
		base:      base,
	}
}

// ProviderFor returns the provider for a model and dimension, creating
// it on first request.
func (s *Source) ProviderFor(model string, dimension int) (Provider, error) {
	key := fmt.Sprintf("%s:%d", model, dimension)

	s.mu.RLock()
	provider, ok := s.providers[key]
	s.mu.RUnlock()
	if ok {
		return provider, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if provider, ok := s.providers[key]; ok {
		return provider, nil
	}

	cfg := s.base
	cfg.Model = model
	cfg.Dimension = dimension

	var err error
	if s.apiKey != "" {
		provider, err = NewOpenAIEmbedder(cfg)
	} else {
		provider, err = NewLocalEmbedder(cfg)
	}
	if err != nil {
		return nil, err
	}
	s.providers[key] = provider
	return provider, nil
}

// Close closes all cached providers.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for key, provider := range s.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.providers, key)
	}
	return firstErr
}
