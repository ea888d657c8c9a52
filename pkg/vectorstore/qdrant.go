package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/harun/memdex/pkg/embedding"
	"github.com/harun/memdex/pkg/memory"
)

const scrollPageSize = 256

// QdrantConfig configures a QdrantStore. URL is the HTTP address; the gRPC
// port is derived as HTTP port + 1.
type QdrantConfig struct {
	URL                 string
	APIKey              string
	Collection          string
	FileIndexCollection string
	Embedder            embedding.Provider
	Logger              zerolog.Logger
}

// QdrantStore stores chunks in one Qdrant collection and the file index in a
// second one whose points carry a one-dimensional placeholder vector.
type QdrantStore struct {
	client     *qdrant.Client
	url        string
	embedder   embedding.Provider
	logger     zerolog.Logger
	collection string
	files      string
}

func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.FileIndexCollection == "" {
		cfg.FileIndexCollection = DefaultFileIndexCollection
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: parsedURL.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		url:        cfg.URL,
		embedder:   cfg.Embedder,
		logger:     cfg.Logger,
		collection: cfg.Collection,
		files:      cfg.FileIndexCollection,
	}
	if err := s.ensureCollection(ctx, s.collection, cfg.Embedder.Dimension(), qdrant.Distance_Cosine); err != nil {
		client.Close()
		return nil, err
	}
	if err := s.ensureCollection(ctx, s.files, 1, qdrant.Distance_Dot); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string, size int, distance qdrant.Distance) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		s.logger.Info().Str("collection", name).Int("vector_size", size).Msg("Creating collection")
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(size),
				Distance: distance,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}
	if info.Config == nil || info.Config.Params == nil {
		return fmt.Errorf("collection %s config is invalid", name)
	}
	params := info.Config.Params.GetVectorsConfig().GetParams()
	if params == nil || params.Size == 0 {
		return fmt.Errorf("could not determine vector size of collection %s", name)
	}
	if int(params.Size) != size {
		return fmt.Errorf("collection %s vector size mismatch: expected %d, got %d", name, size, params.Size)
	}
	return nil
}

func (s *QdrantStore) Location() string { return s.url + "/" + s.collection }

func (s *QdrantStore) Close() error { return s.client.Close() }

func (s *QdrantStore) Add(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := checkDuplicates(docs); err != nil {
		return err
	}
	vectors, err := embedDocuments(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, d := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(d.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(d)),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(pointID(id)))
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, text string, n int, where *memory.Filter) ([]memory.QueryHit, error) {
	if n <= 0 {
		return []memory.QueryHit{}, nil
	}
	query, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := uint64(n)
	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qdrantFilter(where),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	hits := make([]memory.QueryHit, 0, len(scored))
	for _, p := range scored {
		payload := convertPayloadToMap(p.Payload)
		id, _ := payload["chunk_id"].(string)
		if id == "" {
			id = p.Id.GetUuid()
		}
		hits = append(hits, memory.QueryHit{
			ID:       id,
			Metadata: metadataFromPayload(payload),
			Distance: 1 - float64(p.Score),
		})
	}
	return hits, nil
}

func (s *QdrantStore) GetDocument(ctx context.Context, id string) (string, bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(pointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get chunk %s: %w", id, err)
	}
	if len(points) == 0 {
		return "", false, nil
	}
	content, _ := convertPayloadToMap(points[0].Payload)["document"].(string)
	return content, true, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(n), nil
}

func (s *QdrantStore) IDs(ctx context.Context, where *memory.Filter) ([]string, error) {
	ids := []string{}
	err := s.scroll(ctx, s.collection, qdrantFilter(where), qdrant.NewWithPayloadInclude("chunk_id"),
		func(p *qdrant.RetrievedPoint) {
			id, _ := convertPayloadToMap(p.Payload)["chunk_id"].(string)
			if id == "" {
				id = p.Id.GetUuid()
			}
			ids = append(ids, id)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	return ids, nil
}

// Reset recreates the chunk collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return s.ensureCollection(ctx, s.collection, s.embedder.Dimension(), qdrant.Distance_Cosine)
}

func (s *QdrantStore) LoadFileIndexes(ctx context.Context) ([]memory.FileIndex, error) {
	var out []memory.FileIndex
	err := s.scroll(ctx, s.files, nil, qdrant.NewWithPayload(true), func(p *qdrant.RetrievedPoint) {
		fi, ok := fileIndexFromPayload(convertPayloadToMap(p.Payload))
		if !ok {
			s.logger.Warn().Str("point", p.Id.GetUuid()).Msg("Skipping malformed file index point")
			return
		}
		out = append(out, fi)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load file index: %w", err)
	}
	return out, nil
}

func (s *QdrantStore) SaveFileIndex(ctx context.Context, fi memory.FileIndex) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.files,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(fileIndexPointID(fi.FilePath)),
			Vectors: qdrant.NewVectors(1),
			Payload: qdrant.NewValueMap(fileIndexPayload(fi)),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to save file index for %s: %w", fi.FilePath, err)
	}
	return nil
}

func (s *QdrantStore) DeleteFileIndex(ctx context.Context, path string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.files,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(fileIndexPointID(path))),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file index for %s: %w", path, err)
	}
	return nil
}

func (s *QdrantStore) ClearFileIndexes(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.files); err != nil {
		return fmt.Errorf("failed to drop file index collection: %w", err)
	}
	return s.ensureCollection(ctx, s.files, 1, qdrant.Distance_Dot)
}

// scroll walks every point of collection. The offset point is inclusive, so
// each page after the first drops its leading point.
func (s *QdrantStore) scroll(ctx context.Context, collection string, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector, fn func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	for {
		limit := uint32(scrollPageSize)
		if offset != nil {
			limit++
		}
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    payload,
		})
		if err != nil {
			return err
		}
		page := points
		if offset != nil && len(page) > 0 {
			page = page[1:]
		}
		for _, p := range page {
			fn(p)
		}
		if len(page) < scrollPageSize {
			return nil
		}
		offset = page[len(page)-1].Id
	}
}

// pointID maps a chunk ID onto a Qdrant UUID. Non-UUID IDs are hashed; the
// original ID always travels in the payload.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chunk:"+id)).String()
}

func fileIndexPointID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:"+path)).String()
}

func qdrantFilter(where *memory.Filter) *qdrant.Filter {
	if where == nil || len(where.FilePaths) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords("file_path", where.FilePaths...)},
	}
}

func chunkPayload(d memory.Document) map[string]any {
	m := d.Metadata
	payload := map[string]any{
		"chunk_id":         d.ID,
		"document":         d.Content,
		"file_path":        m.FilePath,
		"section_path":     m.SectionPath,
		"title":            m.Title,
		"summary":          m.Summary,
		"content_hash":     m.ContentHash,
		"file_modified_at": m.FileModifiedAt.UTC().Format(time.RFC3339Nano),
		"indexed_at":       m.IndexedAt.UTC().Format(time.RFC3339Nano),
		"header_level":     int64(m.HeaderLevel),
		"part":             int64(m.Part),
		"total_parts":      int64(m.TotalParts),
	}
	if len(m.Extra) > 0 {
		extra := make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		payload["extra"] = extra
	}
	return payload
}

func metadataFromPayload(p map[string]any) memory.ChunkMetadata {
	meta := memory.ChunkMetadata{
		FilePath:       stringField(p, "file_path"),
		SectionPath:    stringField(p, "section_path"),
		Title:          stringField(p, "title"),
		Summary:        stringField(p, "summary"),
		ContentHash:    stringField(p, "content_hash"),
		FileModifiedAt: timeField(p, "file_modified_at"),
		IndexedAt:      timeField(p, "indexed_at"),
		HeaderLevel:    intField(p, "header_level"),
		Part:           intField(p, "part"),
		TotalParts:     intField(p, "total_parts"),
	}
	if extra, ok := p["extra"].(map[string]any); ok && len(extra) > 0 {
		meta.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			meta.Extra[k] = fmt.Sprint(v)
		}
	}
	return meta
}

func fileIndexPayload(fi memory.FileIndex) map[string]any {
	ids := make([]any, len(fi.ChunkIDs))
	for i, id := range fi.ChunkIDs {
		ids[i] = id
	}
	return map[string]any{
		"path":         fi.FilePath,
		"content_hash": fi.ContentHash,
		"modified_at":  fi.ModifiedAt.UTC().Format(time.RFC3339Nano),
		"chunk_ids":    ids,
		"indexed_at":   fi.IndexedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fileIndexFromPayload(p map[string]any) (memory.FileIndex, bool) {
	path := stringField(p, "path")
	if path == "" {
		return memory.FileIndex{}, false
	}
	fi := memory.FileIndex{
		FilePath:    path,
		ContentHash: stringField(p, "content_hash"),
		ModifiedAt:  timeField(p, "modified_at"),
		IndexedAt:   timeField(p, "indexed_at"),
		ChunkIDs:    []string{},
	}
	if raw, ok := p["chunk_ids"].([]any); ok {
		for _, v := range raw {
			if id, ok := v.(string); ok {
				fi.ChunkIDs = append(fi.ChunkIDs, id)
			}
		}
	}
	return fi, true
}

func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}

func stringField(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func intField(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func timeField(p map[string]any, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, stringField(p, key))
	if err != nil {
		return time.Time{}
	}
	return t
}
