package vectorstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/memdex/pkg/embedding"
	"github.com/harun/memdex/pkg/memory"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Store is what the indexer needs from a backend: chunk storage plus the
// durable file index.
type Store interface {
	memory.VectorStore
	memory.FileIndexBackend
	Location() string
	Close() error
}

// Config selects a backend. Path is used by sqlite, URL and APIKey by qdrant.
type Config struct {
	Backend             string
	Path                string
	URL                 string
	APIKey              string
	Collection          string
	FileIndexCollection string
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*QdrantStore)(nil)
)

// Open builds the backend named by cfg.Backend. An empty name selects sqlite.
func Open(ctx context.Context, cfg Config, embedder embedding.Provider, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(embedder), nil
	case "", BackendSQLite:
		return OpenSQLite(ctx, SQLiteConfig{
			Path:                cfg.Path,
			Collection:          cfg.Collection,
			FileIndexCollection: cfg.FileIndexCollection,
			Embedder:            embedder,
			Logger:              logger,
		})
	case BackendQdrant:
		return NewQdrantStore(ctx, QdrantConfig{
			URL:                 cfg.URL,
			APIKey:              cfg.APIKey,
			Collection:          cfg.Collection,
			FileIndexCollection: cfg.FileIndexCollection,
			Embedder:            embedder,
			Logger:              logger,
		})
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.Backend)
	}
}
