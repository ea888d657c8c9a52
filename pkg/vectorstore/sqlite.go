package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/memdex/pkg/embedding"
	"github.com/harun/memdex/pkg/memory"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	Path                string
	Collection          string
	FileIndexCollection string
	Embedder            embedding.Provider
	Logger              zerolog.Logger
}

// SQLiteStore keeps chunks, their embeddings and the file index in a single
// SQLite database using the sqlite-vec extension for similarity search.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	embedder embedding.Provider
	logger   zerolog.Logger

	chunks  string
	vectors string
	files   string
	cache   string
}

// OpenSQLite opens (or creates) the database at cfg.Path. When the stored
// embedding dimension differs from the provider's, the chunk tables and the
// file index are dropped so the next run re-embeds everything.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.FileIndexCollection == "" {
		cfg.FileIndexCollection = DefaultFileIndexCollection
	}
	for _, name := range []string{cfg.Collection, cfg.FileIndexCollection} {
		if err := validateCollection(name); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		path:     cfg.Path,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
		chunks:   cfg.Collection,
		vectors:  cfg.Collection + "_vec",
		files:    cfg.FileIndexCollection,
		cache:    cfg.Collection + "_embedding_cache",
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_file ON %[1]s(file_path);

		CREATE TABLE IF NOT EXISTS %[2]s (
			path TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			modified_at INTEGER NOT NULL,
			chunk_ids TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS %[3]s (
			content_hash TEXT PRIMARY KEY,
			embedding TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`, s.chunks, s.files, s.cache)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	dimension := s.embedder.Dimension()
	key := "embedding_dimension:" + s.chunks

	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read embedding dimension: %w", err)
	case stored != strconv.Itoa(dimension):
		s.logger.Warn().
			Str("stored", stored).
			Int("dimension", dimension).
			Msg("Embedding dimension changed, dropping stored chunks")
		reset := fmt.Sprintf(`
			DROP TABLE IF EXISTS %s;
			DELETE FROM %s;
			DELETE FROM %s;
			DELETE FROM %s;
		`, s.vectors, s.chunks, s.files, s.cache)
		if _, err := s.db.ExecContext(ctx, reset); err != nil {
			return fmt.Errorf("failed to reset for new dimension: %w", err)
		}
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.vectors, dimension)
	if _, err := s.db.ExecContext(ctx, vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, strconv.Itoa(dimension),
	)
	return err
}

func (s *SQLiteStore) Location() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Add embeds and stores docs in one transaction. Embeddings for content
// hashes seen before are read from the cache.
func (s *SQLiteStore) Add(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := checkDuplicates(docs); err != nil {
		return err
	}

	vectors, err := s.embedWithCache(ctx, docs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for i, d := range docs {
		meta, err := encodeMetadata(d.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, file_path, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)", s.chunks),
			d.ID, d.Metadata.FilePath, d.Content, meta, now,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", d.ID, err)
		}

		embeddingJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (chunk_id, embedding) VALUES (?, ?)", s.vectors),
			d.ID, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("failed to store embedding for %s: %w", d.ID, err)
		}

		if hash := d.Metadata.ContentHash; hash != "" {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT OR REPLACE INTO %s (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)", s.cache),
				hash, string(embeddingJSON), len(vectors[i]), now,
			); err != nil {
				return fmt.Errorf("failed to cache embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) embedWithCache(ctx context.Context, docs []memory.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	var missing []memory.Document
	var missingIdx []int

	for i, d := range docs {
		if v, ok := s.cachedEmbedding(ctx, d.Metadata.ContentHash); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, d)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := embedDocuments(ctx, s.embedder, missing)
	if err != nil {
		return nil, err
	}
	for j, i := range missingIdx {
		vectors[i] = fresh[j]
	}
	return vectors, nil
}

func (s *SQLiteStore) cachedEmbedding(ctx context.Context, hash string) ([]float32, bool) {
	if hash == "" {
		return nil, false
	}
	var raw string
	var dimension int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT embedding, dimension FROM %s WHERE content_hash = ?", s.cache), hash,
	).Scan(&raw, &dimension)
	if err != nil || dimension != s.embedder.Dimension() {
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return v, true
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.chunks), id); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE chunk_id = ?", s.vectors), id); err != nil {
			return fmt.Errorf("failed to delete embedding %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, text string, n int, where *memory.Filter) ([]memory.QueryHit, error) {
	if n <= 0 {
		return []memory.QueryHit{}, nil
	}
	query, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embeddingJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	clause, args := fileClause(where)
	stmt := fmt.Sprintf(`
		SELECT
			c.id,
			c.metadata,
			vec_distance_cosine(v.embedding, ?) AS distance
		FROM %s v
		JOIN %s c ON c.id = v.chunk_id
		%s
		ORDER BY distance ASC, c.id ASC
		LIMIT ?
	`, s.vectors, s.chunks, clause)

	params := append([]any{string(embeddingJSON)}, args...)
	params = append(params, n)

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	hits := []memory.QueryHit{}
	for rows.Next() {
		var id, rawMeta string
		var distance float64
		if err := rows.Scan(&id, &rawMeta, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		meta, err := decodeMetadata(rawMeta)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", id).Msg("Skipping chunk with unreadable metadata")
			continue
		}
		hits = append(hits, memory.QueryHit{ID: id, Metadata: meta, Distance: distance})
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT content FROM %s WHERE id = ?", s.chunks), id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get chunk %s: %w", id, err)
	}
	return content, true, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.chunks)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) IDs(ctx context.Context, where *memory.Filter) ([]string, error) {
	clause, args := fileClause(where)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s c %s ORDER BY id", s.chunks, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{s.chunks, s.vectors} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadFileIndexes(ctx context.Context) ([]memory.FileIndex, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT path, content_hash, modified_at, chunk_ids, indexed_at FROM %s ORDER BY path", s.files))
	if err != nil {
		return nil, fmt.Errorf("failed to load file index: %w", err)
	}
	defer rows.Close()

	var out []memory.FileIndex
	for rows.Next() {
		var fi memory.FileIndex
		var modified, indexed int64
		var rawIDs string
		if err := rows.Scan(&fi.FilePath, &fi.ContentHash, &modified, &rawIDs, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan file index: %w", err)
		}
		if err := json.Unmarshal([]byte(rawIDs), &fi.ChunkIDs); err != nil {
			s.logger.Warn().Err(err).Str("path", fi.FilePath).Msg("Skipping file index entry with unreadable chunk ids")
			continue
		}
		fi.ModifiedAt = time.Unix(0, modified).UTC()
		fi.IndexedAt = time.Unix(0, indexed).UTC()
		out = append(out, fi)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFileIndex(ctx context.Context, fi memory.FileIndex) error {
	ids := fi.ChunkIDs
	if ids == nil {
		ids = []string{}
	}
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, content_hash, modified_at, chunk_ids, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			modified_at = excluded.modified_at,
			chunk_ids = excluded.chunk_ids,
			indexed_at = excluded.indexed_at
	`, s.files), fi.FilePath, fi.ContentHash, fi.ModifiedAt.UnixNano(), string(rawIDs), fi.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save file index for %s: %w", fi.FilePath, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteFileIndex(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE path = ?", s.files), path); err != nil {
		return fmt.Errorf("failed to delete file index for %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) ClearFileIndexes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.files); err != nil {
		return fmt.Errorf("failed to clear file index: %w", err)
	}
	return nil
}

func fileClause(where *memory.Filter) (string, []any) {
	if where == nil || len(where.FilePaths) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(where.FilePaths))
	args := make([]any, len(where.FilePaths))
	for i, p := range where.FilePaths {
		placeholders[i] = "?"
		args[i] = p
	}
	return "WHERE c.file_path IN (" + strings.Join(placeholders, ", ") + ")", args
}
