package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/memdex/pkg/memory"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	if provider == "openai" && !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}

	return nil
}

// ValidateBackend validates a vector store backend name
func (v *Validator) ValidateBackend(backend string) error {
	return oneOf("store backend", backend, []string{"sqlite", "qdrant", "memory"})
}

// ValidateProvider validates an embedding provider name
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("embedding provider", provider, []string{"hashing", "openai"})
}

// ValidateQdrantURL requires an absolute http(s) URL
func (v *Validator) ValidateQdrantURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid qdrant url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid qdrant url %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid qdrant url %q: host is required", raw)
	}
	return nil
}

// ValidateSchedule validates a reconcile cron schedule. Empty is allowed.
func (v *Validator) ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := memory.ParseSchedule(expr); err != nil {
		return err
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, []string{"debug", "info", "warn", "error"})
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateBackend(cfg.Store.Backend); err != nil {
		errors = append(errors, err)
	}
	if cfg.Store.Backend == "qdrant" {
		if err := v.ValidateQdrantURL(cfg.Store.QdrantURL); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Store.TimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("store.timeout_seconds must be positive"))
	}

	if err := v.ValidateProvider(cfg.Embedding.Provider); err != nil {
		errors = append(errors, err)
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.BaseURL == "" {
		if err := v.ValidateAPIKey(cfg.Embedding.APIKey, "openai"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Embedding.Dimension < 0 {
		errors = append(errors, fmt.Errorf("embedding.dimension must be >= 0"))
	}

	if cfg.Watcher.DebounceSeconds < 0 {
		errors = append(errors, fmt.Errorf("watcher.debounce_seconds must be >= 0"))
	}
	if err := v.ValidateSchedule(cfg.Reconcile.Schedule); err != nil {
		errors = append(errors, fmt.Errorf("reconcile.schedule: %w", err))
	}
	if cfg.Retrieval.DefaultTopK <= 0 {
		errors = append(errors, fmt.Errorf("retrieval.default_top_k must be positive"))
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

func oneOf(what, value string, valid []string) error {
	for _, candidate := range valid {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", what, value, strings.Join(valid, ", "))
}
