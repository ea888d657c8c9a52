package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-process VectorStore and FileIndexBackend. Distance is
// the share of query words missing from the document.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]Document
	indexes map[string]FileIndex

	failAdd         error
	failDelete      error
	failSave        error
	failDeleteIndex error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:    make(map[string]Document),
		indexes: make(map[string]FileIndex),
	}
}

func (s *fakeStore) Add(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd != nil {
		return s.failAdd
	}
	for _, d := range docs {
		if _, ok := s.docs[d.ID]; ok {
			return fmt.Errorf("duplicate id %s", d.ID)
		}
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return s.failDelete
	}
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *fakeStore) Query(_ context.Context, text string, n int, where *Filter) ([]QueryHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := strings.Fields(strings.ToLower(text))
	var hits []QueryHit
	for _, d := range s.docs {
		if !where.Matches(d.Metadata.FilePath) {
			continue
		}
		content := strings.ToLower(d.Content)
		missing := 0
		for _, w := range words {
			if !strings.Contains(content, w) {
				missing++
			}
		}
		hits = append(hits, QueryHit{
			ID:       d.ID,
			Metadata: d.Metadata,
			Distance: float64(missing) / float64(len(words)),
		})
	}
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

func (s *fakeStore) GetDocument(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d.Content, ok, nil
}

func (s *fakeStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

func (s *fakeStore) IDs(_ context.Context, where *Filter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, d := range s.docs {
		if where.Matches(d.Metadata.FilePath) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]Document)
	return nil
}

func (s *fakeStore) LoadFileIndexes(context.Context) ([]FileIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileIndex, 0, len(s.indexes))
	for _, fi := range s.indexes {
		out = append(out, fi.clone())
	}
	return out, nil
}

func (s *fakeStore) SaveFileIndex(_ context.Context, fi FileIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.indexes[fi.FilePath] = fi.clone()
	return nil
}

func (s *fakeStore) DeleteFileIndex(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteIndex != nil {
		return s.failDeleteIndex
	}
	delete(s.indexes, path)
	return nil
}

func (s *fakeStore) ClearFileIndexes(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = make(map[string]FileIndex)
	return nil
}

// mockStore is a testify mock VectorStore for failure paths.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Add(ctx context.Context, docs []Document) error {
	return m.Called(ctx, docs).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, ids []string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *mockStore) Query(ctx context.Context, text string, n int, where *Filter) ([]QueryHit, error) {
	args := m.Called(ctx, text, n, where)
	hits, _ := args.Get(0).([]QueryHit)
	return hits, args.Error(1)
}

func (m *mockStore) GetDocument(ctx context.Context, id string) (string, bool, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) IDs(ctx context.Context, where *Filter) ([]string, error) {
	args := m.Called(ctx, where)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockStore) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var errBackend = errors.New("backend unavailable")
