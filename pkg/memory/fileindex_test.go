package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIndexStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put get delete", func(t *testing.T) {
		backend := newFakeStore()
		s, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)

		fi := FileIndex{
			FilePath:    "USER.md",
			ContentHash: "abc",
			ModifiedAt:  time.Now().UTC(),
			ChunkIDs:    []string{"c1", "c2"},
			IndexedAt:   time.Now().UTC(),
		}
		require.NoError(t, s.Put(ctx, fi))

		got, ok := s.Get("USER.md")
		require.True(t, ok)
		assert.Equal(t, fi, got)

		// Returned records are copies.
		got.ChunkIDs[0] = "mutated"
		again, _ := s.Get("USER.md")
		assert.Equal(t, "c1", again.ChunkIDs[0])

		require.NoError(t, s.Delete(ctx, "USER.md"))
		_, ok = s.Get("USER.md")
		assert.False(t, ok)
		assert.NoError(t, s.Delete(ctx, "USER.md"))
	})

	t.Run("survives reopen", func(t *testing.T) {
		backend := newFakeStore()
		s, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, FileIndex{FilePath: "MEMORY.md", ChunkIDs: []string{"a", "b", "c"}}))
		require.NoError(t, s.Put(ctx, FileIndex{FilePath: "AGENT.md", ChunkIDs: []string{"d"}}))

		reopened, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)
		assert.Equal(t, []string{"AGENT.md", "MEMORY.md"}, reopened.AllPaths())
		assert.Equal(t, 2, reopened.Len())

		fi, ok := reopened.Get("MEMORY.md")
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b", "c"}, fi.ChunkIDs)
	})

	t.Run("failed save leaves cache untouched", func(t *testing.T) {
		backend := newFakeStore()
		s, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)

		backend.failSave = errBackend
		err = s.Put(ctx, FileIndex{FilePath: "USER.md"})
		assert.True(t, errors.Is(err, ErrStore))
		_, ok := s.Get("USER.md")
		assert.False(t, ok)
	})

	t.Run("failed delete keeps entry, forget evicts it", func(t *testing.T) {
		backend := newFakeStore()
		s, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, FileIndex{FilePath: "USER.md", ChunkIDs: []string{"a"}}))

		backend.failDeleteIndex = errBackend
		err = s.Delete(ctx, "USER.md")
		assert.True(t, errors.Is(err, ErrStore))
		_, ok := s.Get("USER.md")
		assert.True(t, ok)

		s.Forget("USER.md")
		_, ok = s.Get("USER.md")
		assert.False(t, ok)
		loaded, _ := backend.LoadFileIndexes(ctx)
		assert.Len(t, loaded, 1)
	})

	t.Run("clear", func(t *testing.T) {
		backend := newFakeStore()
		s, err := OpenFileIndexStore(ctx, backend)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, FileIndex{FilePath: "USER.md"}))

		require.NoError(t, s.Clear(ctx))
		assert.Equal(t, 0, s.Len())
		loaded, _ := backend.LoadFileIndexes(ctx)
		assert.Empty(t, loaded)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := OpenFileIndexStore(ctx, nil)
		assert.Error(t, err)

		s, err := OpenFileIndexStore(ctx, newFakeStore())
		require.NoError(t, err)
		assert.Error(t, s.Put(ctx, FileIndex{}))
	})
}
