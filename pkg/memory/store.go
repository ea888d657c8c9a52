package memory

import (
	"context"
	"errors"
)

var (
	// ErrStore wraps failures reported by the VectorStore or FileIndex backend.
	ErrStore = errors.New("memory store error")
	// ErrUnreadable marks a file that could not be read; its index entry is left untouched.
	ErrUnreadable = errors.New("memory file unreadable")
	// ErrWatchRoot is returned when the watched root is missing or not a directory.
	ErrWatchRoot = errors.New("watch root unavailable")
)

// Document is a chunk as handed to the vector store.
type Document struct {
	ID       string
	Content  string
	Metadata ChunkMetadata
}

// Filter restricts a query. An empty FilePaths matches every file.
type Filter struct {
	FilePaths []string
}

// Matches reports whether a chunk stored for filePath passes the filter.
func (f *Filter) Matches(filePath string) bool {
	if f == nil || len(f.FilePaths) == 0 {
		return true
	}
	for _, p := range f.FilePaths {
		if p == filePath {
			return true
		}
	}
	return false
}

// QueryHit is one raw similarity result. Lower distance means more similar.
type QueryHit struct {
	ID       string
	Metadata ChunkMetadata
	Distance float64
}

// VectorStore owns chunk documents, their embeddings and similarity search.
// Only MemoryIndexer writes to it.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, text string, n int, where *Filter) ([]QueryHit, error)
	GetDocument(ctx context.Context, id string) (string, bool, error)
	Count(ctx context.Context) (int, error)
	// IDs lists stored chunk IDs, optionally restricted by where.
	IDs(ctx context.Context, where *Filter) ([]string, error)
	// Reset drops every stored chunk.
	Reset(ctx context.Context) error
}

// FileIndexBackend is the durable side of FileIndexStore.
type FileIndexBackend interface {
	LoadFileIndexes(ctx context.Context) ([]FileIndex, error)
	SaveFileIndex(ctx context.Context, fi FileIndex) error
	DeleteFileIndex(ctx context.Context, path string) error
	ClearFileIndexes(ctx context.Context) error
}
