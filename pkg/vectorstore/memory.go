package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harun/memdex/pkg/embedding"
	"github.com/harun/memdex/pkg/memory"
)

type memoryEntry struct {
	doc    memory.Document
	vector []float32
}

// MemoryStore is an in-process VectorStore and FileIndexBackend. Nothing
// survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder embedding.Provider
	entries  map[string]memoryEntry
	indexes  map[string]memory.FileIndex
}

func NewMemoryStore(embedder embedding.Provider) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
		indexes:  make(map[string]memory.FileIndex),
	}
}

func (s *MemoryStore) Location() string { return "memory" }

func (s *MemoryStore) Add(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := checkDuplicates(docs); err != nil {
		return err
	}
	vectors, err := embedDocuments(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if _, ok := s.entries[d.ID]; ok {
			return fmt.Errorf("document %s already exists", d.ID)
		}
	}
	for i, d := range docs {
		s.entries[d.ID] = memoryEntry{doc: d, vector: vectors[i]}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, text string, n int, where *memory.Filter) ([]memory.QueryHit, error) {
	if n <= 0 {
		return []memory.QueryHit{}, nil
	}
	query, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	hits := make([]memory.QueryHit, 0, len(s.entries))
	for id, e := range s.entries {
		if !where.Matches(e.doc.Metadata.FilePath) {
			continue
		}
		hits = append(hits, memory.QueryHit{
			ID:       id,
			Metadata: e.doc.Metadata,
			Distance: cosineDistance(query, e.vector),
		})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e.doc.Content, ok, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) IDs(_ context.Context, where *memory.Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if where.Matches(e.doc.Metadata.FilePath) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

func (s *MemoryStore) LoadFileIndexes(context.Context) ([]memory.FileIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memory.FileIndex, 0, len(s.indexes))
	for _, fi := range s.indexes {
		fi.ChunkIDs = append([]string(nil), fi.ChunkIDs...)
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (s *MemoryStore) SaveFileIndex(_ context.Context, fi memory.FileIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi.ChunkIDs = append([]string(nil), fi.ChunkIDs...)
	s.indexes[fi.FilePath] = fi
	return nil
}

func (s *MemoryStore) DeleteFileIndex(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, path)
	return nil
}

func (s *MemoryStore) ClearFileIndexes(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = make(map[string]memory.FileIndex)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
