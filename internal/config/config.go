package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config represents the memdex configuration
type Config struct {
	// Workspace path holding the memory markdown files
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Store     StoreConfig     `json:"store" mapstructure:"store"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Chunker   ChunkerConfig   `json:"chunker" mapstructure:"chunker"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Reconcile ReconcileConfig `json:"reconcile" mapstructure:"reconcile"`
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// StoreConfig selects the vector store backend
type StoreConfig struct {
	Backend             string `json:"backend" mapstructure:"backend"` // sqlite, qdrant, memory
	Path                string `json:"path" mapstructure:"path"`
	QdrantURL           string `json:"qdrant_url" mapstructure:"qdrant_url"`
	QdrantAPIKey        string `json:"qdrant_api_key" mapstructure:"qdrant_api_key"`
	Collection          string `json:"collection" mapstructure:"collection"`
	FileIndexCollection string `json:"file_index_collection" mapstructure:"file_index_collection"`
	TimeoutSeconds      int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // hashing, openai
	Model          string `json:"model" mapstructure:"model"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	Dimension      int    `json:"dimension" mapstructure:"dimension"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type ChunkerConfig struct {
	ChunkSizeLimit int  `json:"chunk_size_limit" mapstructure:"chunk_size_limit"`
	ChunkOverlap   int  `json:"chunk_overlap" mapstructure:"chunk_overlap"`
	FenceAware     bool `json:"fence_aware" mapstructure:"fence_aware"`
}

type WatcherConfig struct {
	Enabled         bool `json:"enabled" mapstructure:"enabled"`
	DebounceSeconds int  `json:"debounce_seconds" mapstructure:"debounce_seconds"`
}

// ReconcileConfig controls the consistency sweep
type ReconcileConfig struct {
	OnStartup bool   `json:"on_startup" mapstructure:"on_startup"`
	Schedule  string `json:"schedule" mapstructure:"schedule"` // cron expression, empty disables
}

type RetrievalConfig struct {
	DefaultTopK  int     `json:"default_top_k" mapstructure:"default_top_k"`
	MinRelevance float64 `json:"min_relevance" mapstructure:"min_relevance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:             "sqlite",
			QdrantURL:           "http://localhost:6333",
			Collection:          "agent_memory",
			FileIndexCollection: "agent_memory_file_index",
			TimeoutSeconds:      10,
		},
		Embedding: EmbeddingConfig{
			Provider:       "hashing",
			Model:          "text-embedding-3-small",
			TimeoutSeconds: 30,
		},
		Chunker: ChunkerConfig{
			ChunkSizeLimit: 1500,
			ChunkOverlap:   100,
		},
		Watcher: WatcherConfig{
			Enabled:         true,
			DebounceSeconds: 30,
		},
		Reconcile: ReconcileConfig{
			OnStartup: true,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: 5,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Embedding.APIKey != "" {
		masked.Embedding.APIKey = "***"
	}
	if masked.Store.QdrantAPIKey != "" {
		masked.Store.QdrantAPIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// EmbeddingDimension returns the configured dimension or the provider default.
func (c *Config) EmbeddingDimension() int {
	if c.Embedding.Dimension > 0 {
		return c.Embedding.Dimension
	}
	if c.Embedding.Provider == "openai" {
		return 1536
	}
	return 384
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks cross-field rules the schema cannot express
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WorkspacePath) == "" {
		return fmt.Errorf("workspace_path is required")
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "qdrant":
		if c.Store.QdrantURL == "" {
			return fmt.Errorf("store.qdrant_url is required for the qdrant backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store backend: %s (must be: sqlite, qdrant, memory)", c.Store.Backend)
	}

	switch c.Embedding.Provider {
	case "hashing":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("invalid embedding provider: %s (must be: hashing, openai)", c.Embedding.Provider)
	}

	if c.Chunker.ChunkSizeLimit <= 0 {
		return fmt.Errorf("chunker.chunk_size_limit must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("chunker.chunk_overlap must be >= 0")
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSizeLimit {
		return fmt.Errorf("chunker.chunk_overlap must be smaller than chunk_size_limit")
	}
	if c.Retrieval.MinRelevance < 0 || c.Retrieval.MinRelevance > 1 {
		return fmt.Errorf("retrieval.min_relevance must be between 0 and 1")
	}

	return nil
}
