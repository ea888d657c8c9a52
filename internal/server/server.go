package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/pkg/memory"
)

// Searcher is the read side of the memory index.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int, minRelevance float64, fileFilter []string) []memory.MemoryPointer
	RetrieveFullContent(ctx context.Context, chunkID string) (string, bool)
}

// StatusReporter reports index totals.
type StatusReporter interface {
	Status(ctx context.Context) memory.IndexStatus
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Retriever    Searcher
	Indexer      StatusReporter
	DefaultTopK  int
	MinRelevance float64
	Logger       zerolog.Logger
}

// Server exposes memory retrieval over HTTP.
type Server struct {
	addr         string
	retriever    Searcher
	indexer      StatusReporter
	defaultTopK  int
	minRelevance float64
	logger       zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a stopped server.
func New(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = memory.DefaultTopK
	}

	observability.EnsureRegistered()

	return &Server{
		addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		retriever:    cfg.Retriever,
		indexer:      cfg.Indexer,
		defaultTopK:  cfg.DefaultTopK,
		minRelevance: cfg.MinRelevance,
		logger:       cfg.Logger.With().Str("component", "http_server").Logger(),
	}, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}(s.server, s.done)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Addr returns the bound address once started, the configured one otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
