package memory

import (
	"fmt"
	"path/filepath"
	"time"
)

// TargetFiles are the workspace files that make up the agent's memory, in
// enumeration order. Only these files are indexed or watched.
var TargetFiles = []string{
	"AGENT.md",
	"PROACTIVE.md",
	"MEMORY.md",
	"USER.md",
	"EVENT_UNPROCESSED.md",
}

// IsTargetFile reports whether the base name of path is one of TargetFiles.
func IsTargetFile(path string) bool {
	name := filepath.Base(path)
	for _, target := range TargetFiles {
		if name == target {
			return true
		}
	}
	return false
}

const (
	DefaultChunkSizeLimit = 1500
	DefaultChunkOverlap   = 100
	DefaultDebounce       = 30 * time.Second
	DefaultTopK           = 5

	// SummaryMaxLength bounds MemoryChunk.Summary, excluding the "..." suffix.
	SummaryMaxLength = 150
)

// MemoryChunk is one retrievable section (or part of a section) of a file.
type MemoryChunk struct {
	ChunkID        string            `json:"chunk_id"`
	FilePath       string            `json:"file_path"`
	SectionPath    string            `json:"section_path"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Summary        string            `json:"summary"`
	ContentHash    string            `json:"content_hash"`
	FileModifiedAt time.Time         `json:"file_modified_at"`
	IndexedAt      time.Time         `json:"indexed_at"`
	HeaderLevel    int               `json:"header_level"`
	Part           int               `json:"part,omitempty"`
	TotalParts     int               `json:"total_parts,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Metadata returns the metadata stored next to the chunk in the vector store.
func (c MemoryChunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		FilePath:       c.FilePath,
		SectionPath:    c.SectionPath,
		Title:          c.Title,
		Summary:        c.Summary,
		ContentHash:    c.ContentHash,
		FileModifiedAt: c.FileModifiedAt,
		IndexedAt:      c.IndexedAt,
		HeaderLevel:    c.HeaderLevel,
		Part:           c.Part,
		TotalParts:     c.TotalParts,
		Extra:          copyExtra(c.Extra),
	}
}

// Document converts the chunk to the triple handed to VectorStore.Add.
func (c MemoryChunk) Document() Document {
	return Document{
		ID:       c.ChunkID,
		Content:  c.Content,
		Metadata: c.Metadata(),
	}
}

// ChunkMetadata is the typed form of the metadata attached to every stored
// chunk. Extra carries keys unknown to this version.
type ChunkMetadata struct {
	FilePath       string            `json:"file_path,omitempty"`
	SectionPath    string            `json:"section_path,omitempty"`
	Title          string            `json:"title,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	ContentHash    string            `json:"content_hash,omitempty"`
	FileModifiedAt time.Time         `json:"file_modified_at"`
	IndexedAt      time.Time         `json:"indexed_at"`
	HeaderLevel    int               `json:"header_level"`
	Part           int               `json:"part,omitempty"`
	TotalParts     int               `json:"total_parts,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// FileIndex records what is currently indexed for one file.
type FileIndex struct {
	FilePath    string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`
	ModifiedAt  time.Time `json:"modified_at"`
	ChunkIDs    []string  `json:"chunk_ids"`
	IndexedAt   time.Time `json:"indexed_at"`
}

func (fi FileIndex) clone() FileIndex {
	out := fi
	out.ChunkIDs = append([]string(nil), fi.ChunkIDs...)
	return out
}

// MemoryPointer is a lightweight reference to a chunk returned by retrieval.
// It tells the caller where to look, not what the chunk says in full.
type MemoryPointer struct {
	ChunkID        string        `json:"chunk_id"`
	FilePath       string        `json:"file_path"`
	SectionPath    string        `json:"section_path"`
	Title          string        `json:"title"`
	Summary        string        `json:"summary"`
	RelevanceScore float64       `json:"relevance_score"`
	Metadata       ChunkMetadata `json:"metadata"`
}

func (p MemoryPointer) String() string {
	summary := []rune(p.Summary)
	if len(summary) > 50 {
		summary = summary[:50]
	}
	return fmt.Sprintf("[%s] %s - %s...", p.FilePath, p.SectionPath, string(summary))
}

// FileError describes a per-file failure inside a batch operation.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// IndexAllStats summarizes an IndexAll run.
type IndexAllStats struct {
	FilesProcessed int         `json:"files_processed"`
	ChunksCreated  int         `json:"chunks_created"`
	FilesSkipped   int         `json:"files_skipped"`
	Errors         []FileError `json:"errors,omitempty"`
}

// UpdateStats summarizes an incremental Update run.
type UpdateStats struct {
	FilesAdded    int         `json:"files_added"`
	FilesUpdated  int         `json:"files_updated"`
	FilesRemoved  int         `json:"files_removed"`
	ChunksAdded   int         `json:"chunks_added"`
	ChunksRemoved int         `json:"chunks_removed"`
	Errors        []FileError `json:"errors,omitempty"`
}

// Changed reports whether the run touched the index at all.
func (s UpdateStats) Changed() bool {
	return s.FilesAdded+s.FilesUpdated+s.FilesRemoved > 0
}

// ReconcileStats summarizes a consistency sweep.
type ReconcileStats struct {
	OrphansRemoved int `json:"orphans_removed"`
	EntriesDropped int `json:"entries_dropped"`
}

// IndexStatus is a snapshot of the index for status displays.
type IndexStatus struct {
	TotalChunks       int        `json:"total_chunks"`
	TotalFilesIndexed int        `json:"total_files_indexed"`
	WorkspacePath     string     `json:"workspace_path"`
	StoreLocation     string     `json:"store_location,omitempty"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	LastRunID         string     `json:"last_run_id,omitempty"`
}

func copyExtra(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
