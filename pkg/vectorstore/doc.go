// Package vectorstore provides memory.VectorStore implementations.
//
// MemoryStore keeps everything in process and is meant for tests and
// throwaway runs. SQLiteStore persists chunks, sqlite-vec embeddings and the
// file index in one database file. QdrantStore keeps chunks and the file
// index in two Qdrant collections.
//
// Every store embeds document text itself through an embedding.Provider and
// reports cosine distance, so lower is more similar.
package vectorstore
