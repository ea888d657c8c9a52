package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FileIndexStore keeps FileIndex records in memory, backed by a durable
// FileIndexBackend. Writes reach the backend before the cache, so the cache
// never claims more than was persisted.
type FileIndexStore struct {
	mu      sync.RWMutex
	backend FileIndexBackend
	cache   map[string]FileIndex
}

// OpenFileIndexStore loads every persisted FileIndex into the cache.
func OpenFileIndexStore(ctx context.Context, backend FileIndexBackend) (*FileIndexStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("file index backend is required")
	}

	entries, err := backend.LoadFileIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load file index: %v", ErrStore, err)
	}

	s := &FileIndexStore{
		backend: backend,
		cache:   make(map[string]FileIndex, len(entries)),
	}
	for _, fi := range entries {
		s.cache[fi.FilePath] = fi.clone()
	}
	return s, nil
}

// Get returns the record for path, if any.
func (s *FileIndexStore) Get(path string) (FileIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, ok := s.cache[path]
	if !ok {
		return FileIndex{}, false
	}
	return fi.clone(), true
}

// Put persists fi and then caches it.
func (s *FileIndexStore) Put(ctx context.Context, fi FileIndex) error {
	if fi.FilePath == "" {
		return fmt.Errorf("file index path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SaveFileIndex(ctx, fi); err != nil {
		return fmt.Errorf("%w: save file index %s: %v", ErrStore, fi.FilePath, err)
	}
	s.cache[fi.FilePath] = fi.clone()
	return nil
}

// Delete removes the record for path. Deleting an absent path is a no-op.
func (s *FileIndexStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[path]; !ok {
		return nil
	}
	if err := s.backend.DeleteFileIndex(ctx, path); err != nil {
		return fmt.Errorf("%w: delete file index %s: %v", ErrStore, path, err)
	}
	delete(s.cache, path)
	return nil
}

// Forget drops path from the cache without touching the backend.
func (s *FileIndexStore) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, path)
}

// AllPaths returns the indexed paths in sorted order.
func (s *FileIndexStore) AllPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.cache))
	for p := range s.cache {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of indexed files.
func (s *FileIndexStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Clear drops every record.
func (s *FileIndexStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.ClearFileIndexes(ctx); err != nil {
		return fmt.Errorf("%w: clear file index: %v", ErrStore, err)
	}
	s.cache = make(map[string]FileIndex)
	return nil
}
