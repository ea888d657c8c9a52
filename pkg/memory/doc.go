// Package memory turns the agent's workspace markdown files into searchable
// memory pointers and keeps that index in sync with the filesystem.
//
// Invariants:
// - A FileIndex lists exactly the chunk IDs stored for its file.
// - Old chunks of a file are deleted before its new chunks are added.
// - MemoryIndexer is the only writer of the VectorStore and FileIndexStore.
// - Retrieval is advisory and degrades to an empty result.
//
// Usage:
//
//	files, _ := memory.OpenFileIndexStore(ctx, backend)
//	idx, _ := memory.NewMemoryIndexer(memory.IndexerConfig{WorkspacePath: "/workspace", Store: store, FileIndex: files})
//	_, _ = idx.IndexAll(ctx, false)
//	r := memory.NewPointerRetriever(memory.RetrieverConfig{Store: store})
//	pointers := r.Retrieve(ctx, "user preferences", 5, 0, nil)
//	_ = pointers
package memory
