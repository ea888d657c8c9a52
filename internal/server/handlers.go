package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harun/memdex/internal/tracing"
	"github.com/harun/memdex/pkg/memory"
)

// SearchRequest is the POST body of /v1/memory/search.
type SearchRequest struct {
	Query        string   `json:"query"`
	TopK         int      `json:"top_k,omitempty"`
	MinRelevance *float64 `json:"min_relevance,omitempty"`
	Files        []string `json:"files,omitempty"`
}

// SearchResponse lists pointers best first.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
	Results []memory.MemoryPointer `json:"results"`
}

// ChunkResponse carries the full text of one chunk.
type ChunkResponse struct {
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSearch(w, r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	minRelevance := s.minRelevance
	if req.MinRelevance != nil {
		minRelevance = *req.MinRelevance
	}

	pointers := s.retriever.Retrieve(r.Context(), req.Query, req.TopK, minRelevance, req.Files)
	s.writeJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query,
		Count:   len(pointers),
		Results: pointers,
	})
}

// parseSearch reads a JSON body on POST and query parameters on GET.
func (s *Server) parseSearch(w http.ResponseWriter, r *http.Request) (SearchRequest, error) {
	var req SearchRequest

	if r.Method == http.MethodPost {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
	} else {
		q := r.URL.Query()
		req.Query = q.Get("q")
		if v := q.Get("top_k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return req, fmt.Errorf("invalid top_k: %q", v)
			}
			req.TopK = n
		}
		if v := q.Get("min_relevance"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, fmt.Errorf("invalid min_relevance: %q", v)
			}
			req.MinRelevance = &f
		}
		req.Files = q["file"]
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, errors.New("query is required")
	}
	if req.TopK < 0 {
		return req, errors.New("top_k must not be negative")
	}
	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}
	if req.MinRelevance != nil && (*req.MinRelevance < 0 || *req.MinRelevance > 1) {
		return req, errors.New("min_relevance must be between 0 and 1")
	}
	return req, nil
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content, ok := s.retriever.RetrieveFullContent(r.Context(), id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("chunk not found: %s", id))
		return
	}
	s.writeJSON(w, http.StatusOK, ChunkResponse{ChunkID: id, Content: content})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.indexer.Status(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	logger.Warn().
		Err(err).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("Request rejected")
	s.writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		RequestID: tracing.GetRequestID(r.Context()),
	})
}
