package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/internal/tracing"
)

const tracerName = "memdex.memory"

// DefaultStoreTimeout bounds every VectorStore and FileIndex call.
const DefaultStoreTimeout = 10 * time.Second

// IndexerConfig holds MemoryIndexer dependencies.
type IndexerConfig struct {
	WorkspacePath string
	Store         VectorStore
	FileIndex     *FileIndexStore
	Chunker       *MarkdownChunker
	Logger        zerolog.Logger
	StoreTimeout  time.Duration
	// StoreLocation is reported by Status (sqlite path, qdrant URL, ...).
	StoreLocation string
}

// MemoryIndexer is the single writer of the VectorStore and FileIndexStore.
// All mutating operations are serialized.
type MemoryIndexer struct {
	root          string
	store         VectorStore
	files         *FileIndexStore
	chunker       *MarkdownChunker
	logger        zerolog.Logger
	storeTimeout  time.Duration
	storeLocation string

	mu sync.Mutex

	runMu     sync.RWMutex
	lastRun   *time.Time
	lastRunID string
}

type fileResult struct {
	added   int
	removed int
	existed bool
}

// NewMemoryIndexer creates an indexer over the target files under WorkspacePath.
func NewMemoryIndexer(cfg IndexerConfig) (*MemoryIndexer, error) {
	if cfg.WorkspacePath == "" {
		return nil, errors.New("workspace path is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("vector store is required")
	}
	if cfg.FileIndex == nil {
		return nil, errors.New("file index store is required")
	}
	if cfg.Chunker == nil {
		cfg.Chunker = NewMarkdownChunker(DefaultChunkerOptions())
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	observability.EnsureRegistered()

	return &MemoryIndexer{
		root:          cfg.WorkspacePath,
		store:         cfg.Store,
		files:         cfg.FileIndex,
		chunker:       cfg.Chunker,
		logger:        cfg.Logger.With().Str("component", "memory_indexer").Logger(),
		storeTimeout:  cfg.StoreTimeout,
		storeLocation: cfg.StoreLocation,
	}, nil
}

// WorkspacePath returns the watched root.
func (m *MemoryIndexer) WorkspacePath() string {
	return m.root
}

// IndexAll indexes every present target file. With force the index is cleared
// first; otherwise files whose hash matches their FileIndex are skipped.
// Per-file failures are collected in the stats and never abort the batch.
func (m *MemoryIndexer) IndexAll(ctx context.Context, force bool) (IndexAllStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.beginRun(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.index_all", attribute.Bool("force", force))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	var stats IndexAllStats

	if force {
		if err := m.clearLocked(ctx); err != nil {
			tracing.FailSpan(span, err)
			observability.RecordIndexRun("index_all", "error", time.Since(start))
			return stats, err
		}
		observability.RecordIndexAudit(ctx, "index_all:force", "success", nil)
		logger.Info().Msg("Cleared memory index for forced re-index")
	}

	for _, rel := range m.presentTargets() {
		if err := ctx.Err(); err != nil {
			observability.RecordIndexRun("index_all", "canceled", time.Since(start))
			return stats, err
		}

		if !force {
			if fi, ok := m.files.Get(rel); ok {
				if hash, err := m.hashTarget(rel); err == nil && hash == fi.ContentHash {
					stats.FilesSkipped++
					continue
				}
			}
		}

		res, err := m.indexFile(ctx, rel)
		if err != nil {
			logger.Warn().Err(err).Str("file", rel).Msg("Failed to index file")
			span.RecordError(err)
			stats.Errors = append(stats.Errors, FileError{Path: rel, Err: err.Error()})
			continue
		}

		stats.FilesProcessed++
		stats.ChunksCreated += res.added
		observability.RecordChunksChanged("added", res.added)
		observability.RecordChunksChanged("removed", res.removed)
	}

	m.finishRun(ctx)
	span.SetAttributes(
		attribute.Int("files_processed", stats.FilesProcessed),
		attribute.Int("chunks_created", stats.ChunksCreated),
		attribute.Int("files_skipped", stats.FilesSkipped),
	)
	observability.RecordIndexRun("index_all", runStatus(len(stats.Errors)), time.Since(start))

	logger.Info().
		Int("files_processed", stats.FilesProcessed).
		Int("chunks_created", stats.ChunksCreated).
		Int("files_skipped", stats.FilesSkipped).
		Int("errors", len(stats.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Index all completed")

	return stats, nil
}

// Update brings the index in line with the target files currently on disk.
// Removals are applied first, then new files, then modified files. The file
// list is computed once at the start of the run.
func (m *MemoryIndexer) Update(ctx context.Context) (UpdateStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.beginRun(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.update")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	var stats UpdateStats

	if !DirExists(m.root) {
		logger.Warn().Str("workspace", m.root).Msg("Workspace path missing, indexed files will be removed")
	}

	present := m.presentTargets()
	onDisk := make(map[string]bool, len(present))
	for _, rel := range present {
		onDisk[rel] = true
	}

	for _, rel := range m.files.AllPaths() {
		if onDisk[rel] {
			continue
		}
		removed, err := m.removeFile(ctx, rel)
		if err != nil {
			logger.Error().Err(err).Str("file", rel).Msg("Failed to remove file from index")
			span.RecordError(err)
			stats.Errors = append(stats.Errors, FileError{Path: rel, Err: err.Error()})
			continue
		}
		stats.FilesRemoved++
		stats.ChunksRemoved += removed
		logger.Debug().Str("file", rel).Int("chunks", removed).Msg("Removed file from index")
	}

	var added, modified []string
	for _, rel := range present {
		hash, err := m.hashTarget(rel)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnreadable, rel, err)
			logger.Warn().Err(err).Str("file", rel).Msg("Skipping unreadable file")
			stats.Errors = append(stats.Errors, FileError{Path: rel, Err: err.Error()})
			continue
		}
		fi, ok := m.files.Get(rel)
		switch {
		case !ok:
			added = append(added, rel)
		case fi.ContentHash != hash:
			modified = append(modified, rel)
		}
	}

	for _, rel := range append(added, modified...) {
		if err := ctx.Err(); err != nil {
			observability.RecordIndexRun("update", "canceled", time.Since(start))
			return stats, err
		}

		res, err := m.indexFile(ctx, rel)
		if err != nil {
			logger.Warn().Err(err).Str("file", rel).Msg("Failed to index file")
			span.RecordError(err)
			stats.Errors = append(stats.Errors, FileError{Path: rel, Err: err.Error()})
			continue
		}
		if res.existed {
			stats.FilesUpdated++
		} else {
			stats.FilesAdded++
		}
		stats.ChunksAdded += res.added
		stats.ChunksRemoved += res.removed
	}

	m.finishRun(ctx)
	observability.RecordChunksChanged("added", stats.ChunksAdded)
	observability.RecordChunksChanged("removed", stats.ChunksRemoved)
	observability.RecordIndexRun("update", runStatus(len(stats.Errors)), time.Since(start))
	span.SetAttributes(
		attribute.Int("files_added", stats.FilesAdded),
		attribute.Int("files_updated", stats.FilesUpdated),
		attribute.Int("files_removed", stats.FilesRemoved),
	)

	event := logger.Debug()
	if stats.Changed() {
		event = logger.Info()
	}
	event.
		Int("files_added", stats.FilesAdded).
		Int("files_updated", stats.FilesUpdated).
		Int("files_removed", stats.FilesRemoved).
		Int("chunks_added", stats.ChunksAdded).
		Int("chunks_removed", stats.ChunksRemoved).
		Int("errors", len(stats.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Index update completed")

	return stats, nil
}

// IndexFile (re)indexes a single file given relative to the workspace root and
// returns the number of chunks created. An unreadable file returns 0 and an
// error wrapping ErrUnreadable; its existing index entry is left untouched.
func (m *MemoryIndexer) IndexFile(ctx context.Context, rel string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	res, err := m.indexFile(ctx, rel)
	if err != nil {
		observability.RecordIndexRun("index_file", "error", time.Since(start))
		if errors.Is(err, ErrUnreadable) {
			m.logger.Warn().Err(err).Str("file", rel).Msg("Skipping unreadable file")
		}
		return 0, err
	}

	observability.RecordChunksChanged("added", res.added)
	observability.RecordChunksChanged("removed", res.removed)
	observability.RecordIndexRun("index_file", "ok", time.Since(start))
	m.refreshGauges(ctx)
	return res.added, nil
}

// RemoveFile deletes a file's chunks and FileIndex, returning the number of
// chunks removed. Removing an unindexed file is a no-op.
func (m *MemoryIndexer) RemoveFile(ctx context.Context, rel string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.removeFile(ctx, rel)
	if err != nil {
		return 0, err
	}
	observability.RecordChunksChanged("removed", removed)
	m.refreshGauges(ctx)
	return removed, nil
}

// Clear drops every chunk and every FileIndex.
func (m *MemoryIndexer) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.clearLocked(ctx); err != nil {
		observability.RecordIndexAudit(ctx, "clear", "failure", map[string]interface{}{"error": err.Error()})
		return err
	}
	observability.RecordIndexAudit(ctx, "clear", "success", nil)
	m.logger.Info().Msg("Memory index cleared")
	m.refreshGauges(ctx)
	return nil
}

// Reconcile repairs the store after an interrupted run. FileIndex entries
// that reference missing chunks are dropped so the next Update re-indexes
// those files, then chunks owned by no FileIndex are deleted.
func (m *MemoryIndexer) Reconcile(ctx context.Context) (ReconcileStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.beginRun(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.reconcile")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	var stats ReconcileStats

	fail := func(err error) (ReconcileStats, error) {
		tracing.FailSpan(span, err)
		observability.RecordIndexRun("reconcile", "error", time.Since(start))
		return stats, err
	}

	stored, err := m.storedIDs(ctx)
	if err != nil {
		return fail(err)
	}
	present := make(map[string]bool, len(stored))
	for _, id := range stored {
		present[id] = true
	}

	owned := make(map[string]bool, len(stored))
	for _, rel := range m.files.AllPaths() {
		fi, ok := m.files.Get(rel)
		if !ok {
			continue
		}

		broken := false
		for _, id := range fi.ChunkIDs {
			if !present[id] {
				broken = true
				break
			}
		}
		if broken {
			if err := m.deleteFileIndex(ctx, rel); err != nil {
				return fail(err)
			}
			stats.EntriesDropped++
			logger.Warn().Str("file", rel).Msg("Dropped file index entry with missing chunks")
			continue
		}

		for _, id := range fi.ChunkIDs {
			owned[id] = true
		}
	}

	var orphans []string
	for _, id := range stored {
		if !owned[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		if err := m.deleteChunks(ctx, orphans); err != nil {
			return fail(err)
		}
		stats.OrphansRemoved = len(orphans)
		observability.RecordChunksChanged("removed", len(orphans))
	}

	m.finishRun(ctx)
	observability.RecordIndexRun("reconcile", "ok", time.Since(start))
	if stats.OrphansRemoved > 0 || stats.EntriesDropped > 0 {
		observability.RecordIndexAudit(ctx, "reconcile", "success", map[string]interface{}{
			"orphans_removed": stats.OrphansRemoved,
			"entries_dropped": stats.EntriesDropped,
		})
	}
	logger.Info().
		Int("orphans_removed", stats.OrphansRemoved).
		Int("entries_dropped", stats.EntriesDropped).
		Dur("duration", time.Since(start)).
		Msg("Memory index reconciled")

	return stats, nil
}

// Status returns a snapshot of the index. A store failure reports zero chunks.
func (m *MemoryIndexer) Status(ctx context.Context) IndexStatus {
	status := IndexStatus{
		TotalFilesIndexed: m.files.Len(),
		WorkspacePath:     m.root,
		StoreLocation:     m.storeLocation,
	}

	count, err := m.count(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to count indexed chunks")
	} else {
		status.TotalChunks = count
	}

	m.runMu.RLock()
	if m.lastRun != nil {
		t := *m.lastRun
		status.LastRun = &t
	}
	status.LastRunID = m.lastRunID
	m.runMu.RUnlock()

	return status
}

// indexFile replaces the chunks of one file. Callers hold m.mu.
func (m *MemoryIndexer) indexFile(ctx context.Context, rel string) (fileResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.index_file", attribute.String("file", rel))
	defer span.End()

	var res fileResult

	full, err := ResolveWorkspacePath(m.root, rel)
	if err != nil {
		return res, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrUnreadable, rel, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrUnreadable, rel, err)
	}
	modTime := info.ModTime().UTC()

	if old, ok := m.files.Get(rel); ok {
		res.existed = true
		if len(old.ChunkIDs) > 0 {
			if err := m.deleteChunks(ctx, old.ChunkIDs); err != nil {
				span.RecordError(err)
				return res, err
			}
			res.removed = len(old.ChunkIDs)
		}
		if err := m.dropFileIndex(ctx, old); err != nil {
			span.RecordError(err)
			return res, err
		}
	}

	chunks := m.chunker.Chunk(string(data), rel)
	ids := make([]string, len(chunks))
	docs := make([]Document, len(chunks))
	for i := range chunks {
		chunks[i].FileModifiedAt = modTime
		ids[i] = chunks[i].ChunkID
		docs[i] = chunks[i].Document()
	}

	if len(docs) > 0 {
		if err := m.addChunks(ctx, docs); err != nil {
			span.RecordError(err)
			return res, err
		}
	}

	fi := FileIndex{
		FilePath:    rel,
		ContentHash: HashBytes(data),
		ModifiedAt:  modTime,
		ChunkIDs:    ids,
		IndexedAt:   time.Now().UTC(),
	}
	if err := m.putFileIndex(ctx, fi); err != nil {
		span.RecordError(err)
		if len(ids) > 0 {
			if derr := m.deleteChunks(ctx, ids); derr != nil {
				m.logger.Error().Err(derr).Str("file", rel).Msg("Failed to roll back chunks after file index error")
			}
		}
		return res, err
	}

	res.added = len(chunks)
	span.SetAttributes(attribute.Int("chunks", res.added))
	m.logger.Debug().Str("file", rel).Int("chunks", res.added).Msg("Indexed file")
	return res, nil
}

func (m *MemoryIndexer) removeFile(ctx context.Context, rel string) (int, error) {
	fi, ok := m.files.Get(rel)
	if !ok {
		return 0, nil
	}
	if len(fi.ChunkIDs) > 0 {
		if err := m.deleteChunks(ctx, fi.ChunkIDs); err != nil {
			return 0, err
		}
	}
	if err := m.dropFileIndex(ctx, fi); err != nil {
		return 0, err
	}
	return len(fi.ChunkIDs), nil
}

// dropFileIndex deletes the entry of a file whose chunks were already
// deleted. If that fails the entry is blanked, so it lists no chunks and its
// hash never matches, and the next run re-indexes the file. If blanking fails
// too, the entry leaves the cache and Reconcile drops the persisted copy.
func (m *MemoryIndexer) dropFileIndex(ctx context.Context, fi FileIndex) error {
	err := m.deleteFileIndex(ctx, fi.FilePath)
	if err == nil {
		return nil
	}

	blank := FileIndex{FilePath: fi.FilePath, ModifiedAt: fi.ModifiedAt, IndexedAt: fi.IndexedAt}
	if perr := m.putFileIndex(ctx, blank); perr != nil {
		m.files.Forget(fi.FilePath)
		m.logger.Error().Err(perr).Str("file", fi.FilePath).Msg("Failed to blank file index entry, evicted from cache")
	}
	return err
}

func (m *MemoryIndexer) clearLocked(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	if err := m.store.Reset(sctx); err != nil {
		return fmt.Errorf("%w: reset store: %v", ErrStore, err)
	}
	return m.files.Clear(sctx)
}

// presentTargets lists the target files that exist under the root, in
// TargetFiles order. Entries that cannot be stat'ed are kept so the read
// failure surfaces later as ErrUnreadable.
func (m *MemoryIndexer) presentTargets() []string {
	var present []string
	for _, name := range TargetFiles {
		exists, err := FileExists(filepath.Join(m.root, name))
		if exists || err != nil {
			present = append(present, name)
		}
	}
	return present
}

func (m *MemoryIndexer) hashTarget(rel string) (string, error) {
	full, err := ResolveWorkspacePath(m.root, rel)
	if err != nil {
		return "", err
	}
	return HashFile(full)
}

func (m *MemoryIndexer) addChunks(ctx context.Context, docs []Document) error {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	if err := m.store.Add(sctx, docs); err != nil {
		return fmt.Errorf("%w: add chunks: %v", ErrStore, err)
	}
	return nil
}

func (m *MemoryIndexer) deleteChunks(ctx context.Context, ids []string) error {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	if err := m.store.Delete(sctx, ids); err != nil {
		return fmt.Errorf("%w: delete chunks: %v", ErrStore, err)
	}
	return nil
}

func (m *MemoryIndexer) storedIDs(ctx context.Context) ([]string, error) {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	ids, err := m.store.IDs(sctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunk ids: %v", ErrStore, err)
	}
	return ids, nil
}

func (m *MemoryIndexer) count(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	n, err := m.store.Count(sctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStore, err)
	}
	return n, nil
}

func (m *MemoryIndexer) putFileIndex(ctx context.Context, fi FileIndex) error {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	return m.files.Put(sctx, fi)
}

func (m *MemoryIndexer) deleteFileIndex(ctx context.Context, rel string) error {
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	return m.files.Delete(sctx, rel)
}

func (m *MemoryIndexer) beginRun(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetRunID(ctx) != "" {
		return ctx
	}
	return tracing.WithRunID(ctx, tracing.NewRunID())
}

func (m *MemoryIndexer) finishRun(ctx context.Context) {
	now := time.Now().UTC()
	m.runMu.Lock()
	m.lastRun = &now
	m.lastRunID = tracing.GetRunID(ctx)
	m.runMu.Unlock()

	m.refreshGauges(ctx)
}

func (m *MemoryIndexer) refreshGauges(ctx context.Context) {
	count, err := m.count(ctx)
	if err != nil {
		return
	}
	observability.SetIndexSize(m.files.Len(), count)
}

func runStatus(errCount int) string {
	if errCount > 0 {
		return "partial"
	}
	return "ok"
}
