package vectorstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/memdex/pkg/memory"
)

func TestChunkPayloadRoundTrip(t *testing.T) {
	doc := testDocs()[0]
	doc.Metadata.Extra = map[string]string{"k": "v"}

	payload := convertPayloadToMap(qdrant.NewValueMap(chunkPayload(doc)))
	assert.Equal(t, "c1", payload["chunk_id"])
	assert.Equal(t, doc.Content, payload["document"])

	meta := metadataFromPayload(payload)
	assert.Equal(t, doc.Metadata.FilePath, meta.FilePath)
	assert.Equal(t, doc.Metadata.SectionPath, meta.SectionPath)
	assert.Equal(t, doc.Metadata.HeaderLevel, meta.HeaderLevel)
	assert.True(t, doc.Metadata.FileModifiedAt.Equal(meta.FileModifiedAt))
	assert.Equal(t, map[string]string{"k": "v"}, meta.Extra)
}

func TestFileIndexPayloadRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 6, 7, 8, 9, 10, time.UTC)
	fi := memory.FileIndex{FilePath: "AGENT.md", ContentHash: "abc", ModifiedAt: at, ChunkIDs: []string{"a", "b"}, IndexedAt: at}

	got, ok := fileIndexFromPayload(convertPayloadToMap(qdrant.NewValueMap(fileIndexPayload(fi))))
	require.True(t, ok)
	assert.Equal(t, fi.FilePath, got.FilePath)
	assert.Equal(t, fi.ChunkIDs, got.ChunkIDs)
	assert.True(t, got.ModifiedAt.Equal(at))

	_, ok = fileIndexFromPayload(map[string]any{"content_hash": "x"})
	assert.False(t, ok)
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	hashed := pointID("stray")
	_, err := uuid.Parse(hashed)
	assert.NoError(t, err)
	assert.Equal(t, hashed, pointID("stray"))
	assert.NotEqual(t, fileIndexPointID("USER.md"), fileIndexPointID("AGENT.md"))
}

func TestQdrantFilter(t *testing.T) {
	assert.Nil(t, qdrantFilter(nil))
	assert.Nil(t, qdrantFilter(&memory.Filter{}))

	f := qdrantFilter(&memory.Filter{FilePaths: []string{"USER.md"}})
	require.NotNil(t, f)
	assert.Len(t, f.Must, 1)
}
