package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/internal/tracing"
)

// RetrieverConfig holds PointerRetriever dependencies.
type RetrieverConfig struct {
	Store   VectorStore
	Logger  zerolog.Logger
	Timeout time.Duration
}

// PointerRetriever runs read-only similarity searches against the store.
// It is safe for concurrent use and may race an in-flight update.
type PointerRetriever struct {
	store   VectorStore
	logger  zerolog.Logger
	timeout time.Duration
}

// NewPointerRetriever creates a retriever.
func NewPointerRetriever(cfg RetrieverConfig) *PointerRetriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}
	observability.EnsureRegistered()

	return &PointerRetriever{
		store:   cfg.Store,
		logger:  cfg.Logger.With().Str("component", "memory_retriever").Logger(),
		timeout: cfg.Timeout,
	}
}

// Retrieve returns up to topK pointers ordered by relevance, best first.
// Lookups are advisory: store failures are logged and yield an empty result.
// fileFilter, when non-empty, restricts results to those exact file paths.
func (r *PointerRetriever) Retrieve(ctx context.Context, query string, topK int, minRelevance float64, fileFilter []string) []MemoryPointer {
	pointers := []MemoryPointer{}
	if strings.TrimSpace(query) == "" {
		return pointers
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.retrieve",
		attribute.Int("top_k", topK),
		attribute.Float64("min_relevance", minRelevance),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	start := time.Now()
	defer func() {
		observability.RecordRetrieve(time.Since(start), len(pointers))
	}()

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	total, err := r.store.Count(sctx)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Failed to count memory chunks")
		return pointers
	}
	if total == 0 {
		return pointers
	}

	var where *Filter
	if len(fileFilter) > 0 {
		where = &Filter{FilePaths: fileFilter}
	}

	hits, err := r.store.Query(sctx, query, min(topK, total), where)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Memory query failed")
		return pointers
	}

	for _, hit := range hits {
		score := 1.0 / (1.0 + hit.Distance)
		if score < minRelevance {
			continue
		}

		meta := hit.Metadata
		extra := meta
		extra.FilePath, extra.SectionPath, extra.Title, extra.Summary = "", "", "", ""
		extra.Extra = copyExtra(meta.Extra)

		pointers = append(pointers, MemoryPointer{
			ChunkID:        hit.ID,
			FilePath:       meta.FilePath,
			SectionPath:    meta.SectionPath,
			Title:          meta.Title,
			Summary:        meta.Summary,
			RelevanceScore: score,
			Metadata:       extra,
		})
	}

	sort.SliceStable(pointers, func(i, j int) bool {
		return pointers[i].RelevanceScore > pointers[j].RelevanceScore
	})

	span.SetAttributes(attribute.Int("results", len(pointers)))
	logger.Debug().Str("query", truncateForLog(query)).Int("results", len(pointers)).Msg("Memory retrieval completed")
	return pointers
}

// RetrieveFullContent returns the stored text of a chunk.
func (r *PointerRetriever) RetrieveFullContent(ctx context.Context, chunkID string) (string, bool) {
	if chunkID == "" {
		return "", false
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	content, ok, err := r.store.GetDocument(sctx, chunkID)
	if err != nil {
		r.logger.Error().Err(err).Str("chunk_id", chunkID).Msg("Failed to load chunk content")
		return "", false
	}
	return content, ok
}

func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) <= 80 {
		return s
	}
	return string(runes[:80]) + "..."
}
