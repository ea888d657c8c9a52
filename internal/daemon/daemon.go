package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/memdex/internal/config"
	"github.com/harun/memdex/internal/logger"
	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/internal/server"
	"github.com/harun/memdex/internal/tracing"
	"github.com/harun/memdex/pkg/embedding"
	"github.com/harun/memdex/pkg/memory"
	"github.com/harun/memdex/pkg/vectorstore"
)

// Options selects the long-running services Start brings up.
type Options struct {
	Watch bool // run the debounced file watcher
	Serve bool // run the HTTP server

	Version string // reported on traces
}

// Status is the daemon runtime state.
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime"`
	Watching  bool          `json:"watching"`
	Serving   bool          `json:"serving"`
}

// Daemon owns the memory index and the services around it.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	options Options

	// Core modules
	embedder  embedding.Provider
	store     vectorstore.Store
	files     *memory.FileIndexStore
	indexer   *memory.MemoryIndexer
	retriever *memory.PointerRetriever

	// Services
	watcher *memory.DebouncedWatcher
	sweeper *memory.Sweeper
	server  *server.Server

	// Internal
	eventLoop *EventLoop
	pidFile   *PIDFile

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	closed    bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New opens the store and builds every component. Nothing runs until Start;
// one-shot commands use the getters and Close.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry(tracing.ProviderConfig{
		ServiceName:    "memdex",
		ServiceVersion: opts.Version,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		options:        opts,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: true,
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.pidFile = NewPIDFile(PIDFilePath(cfg.DataDir))

	return d, nil
}

// abort releases whatever New managed to open.
func (d *Daemon) abort() {
	d.cancel()
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

func (d *Daemon) initializeCoreModules() error {
	zl := d.logger.GetZerolog()

	if _, err := memory.EnsureDataDirectory(d.config.DataDir); err != nil {
		return err
	}

	if d.config.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(d.config.Logging.AuditFile); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
		} else {
			d.logger.Debug().Str("path", d.config.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:  d.config.Embedding.Provider,
		Model:     d.config.Embedding.Model,
		APIKey:    d.config.Embedding.APIKey,
		BaseURL:   d.config.Embedding.BaseURL,
		Dimension: d.config.EmbeddingDimension(),
		Timeout:   d.config.EmbeddingTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	d.embedder = embedder
	d.logger.Debug().
		Str("provider", d.config.Embedding.Provider).
		Int("dimension", embedder.Dimension()).
		Msg("Embedding provider initialized")

	openCtx, cancel := context.WithTimeout(d.ctx, d.config.StoreTimeout())
	defer cancel()

	store, err := vectorstore.Open(openCtx, vectorstore.Config{
		Backend:             d.config.Store.Backend,
		Path:                d.config.Store.Path,
		URL:                 d.config.Store.QdrantURL,
		APIKey:              d.config.Store.QdrantAPIKey,
		Collection:          d.config.Store.Collection,
		FileIndexCollection: d.config.Store.FileIndexCollection,
	}, embedder, zl)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	d.store = store
	d.logger.Debug().
		Str("backend", d.config.Store.Backend).
		Str("location", store.Location()).
		Msg("Vector store opened")

	files, err := memory.OpenFileIndexStore(openCtx, store)
	if err != nil {
		return fmt.Errorf("failed to load file index: %w", err)
	}
	d.files = files

	indexer, err := memory.NewMemoryIndexer(memory.IndexerConfig{
		WorkspacePath: d.config.WorkspacePath,
		Store:         store,
		FileIndex:     files,
		Chunker: memory.NewMarkdownChunker(memory.ChunkerOptions{
			SizeLimit:  d.config.Chunker.ChunkSizeLimit,
			Overlap:    d.config.Chunker.ChunkOverlap,
			FenceAware: d.config.Chunker.FenceAware,
		}),
		Logger:        zl,
		StoreTimeout:  d.config.StoreTimeout(),
		StoreLocation: store.Location(),
	})
	if err != nil {
		return fmt.Errorf("failed to create memory indexer: %w", err)
	}
	d.indexer = indexer

	d.retriever = memory.NewPointerRetriever(memory.RetrieverConfig{
		Store:   store,
		Logger:  zl,
		Timeout: d.config.StoreTimeout(),
	})

	return nil
}

func (d *Daemon) initializeServices() error {
	zl := d.logger.GetZerolog()

	if d.options.Watch {
		watcher, err := memory.NewDebouncedWatcher(memory.WatcherConfig{
			Root:     d.config.WorkspacePath,
			Source:   memory.NewFSNotifySource(zl),
			Indexer:  d.indexer,
			Debounce: d.config.Debounce(),
			Logger:   zl,
		})
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
	}

	if d.config.Reconcile.Schedule != "" && (d.options.Watch || d.options.Serve) {
		sweeper, err := memory.NewSweeper(memory.SweeperConfig{
			Schedule:      d.config.Reconcile.Schedule,
			Indexer:       d.indexer,
			Logger:        zl,
			WorkspacePath: d.config.WorkspacePath,
		})
		if err != nil {
			return fmt.Errorf("failed to create sweeper: %w", err)
		}
		d.sweeper = sweeper
	}

	if d.options.Serve {
		srv, err := server.New(server.Config{
			Host:         d.config.Server.Host,
			Port:         d.config.Server.Port,
			Retriever:    d.retriever,
			Indexer:      d.indexer,
			DefaultTopK:  d.config.Retrieval.DefaultTopK,
			MinRelevance: d.config.Retrieval.MinRelevance,
			Logger:       zl,
		})
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		d.server = srv
	}

	return nil
}

// Start catches the index up with the workspace and brings up the services.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("daemon is closed")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	ctx := tracing.NewRunContext(d.ctx, tracing.TriggerStartup)
	logger := tracing.PropagateToLogger(ctx, d.logger.GetZerolog())
	logger.Info().
		Str("workspace", d.config.WorkspacePath).
		Str("store", d.store.Location()).
		Msg("Starting memdex daemon")

	if err := d.pidFile.Acquire(); err != nil {
		d.setStopped()
		return err
	}
	logger.Debug().Str("pid_file", d.pidFile.Path()).Int("pid", os.Getpid()).Msg("PID file written")

	d.catchUp(ctx)

	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			d.rollbackStart()
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	if d.sweeper != nil {
		d.sweeper.Start()
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			d.rollbackStart()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().
		Bool("watching", d.watcher != nil).
		Bool("serving", d.server != nil).
		Bool("sweeping", d.sweeper != nil).
		Msg("Daemon started")

	return nil
}

// catchUp applies the startup consistency sweep and then picks up edits made
// while nothing was watching. Failures are logged; the daemon still starts.
func (d *Daemon) catchUp(ctx context.Context) {
	logger := tracing.PropagateToLogger(ctx, d.logger.GetZerolog())

	if d.config.Reconcile.OnStartup {
		if _, err := d.indexer.Reconcile(ctx); err != nil {
			logger.Error().Err(err).Msg("Startup reconcile failed")
		}
	}

	// A missing root would make Update drop every indexed file.
	if !memory.DirExists(d.config.WorkspacePath) {
		logger.Warn().Str("workspace", d.config.WorkspacePath).Msg("Workspace missing, startup update skipped")
		return
	}

	stats, err := d.indexer.Update(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Startup update failed")
		return
	}
	if len(stats.Errors) > 0 {
		logger.Warn().Int("errors", len(stats.Errors)).Msg("Startup update skipped files")
	}
}

func (d *Daemon) rollbackStart() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	if err := d.pidFile.Release(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to release PID file")
	}
	d.setStopped()
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop shuts the services down in reverse order and closes the store.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := tracing.PropagateToLogger(tracing.NewRequestContext(d.ctx), d.logger.GetZerolog())
	logger.Info().Msg("Stopping memdex daemon")

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop HTTP server")
		}
		cancel()
	}

	// Waits for an in-flight Update.
	if d.watcher != nil {
		d.watcher.Stop()
	}

	if d.sweeper != nil {
		d.sweeper.Stop()
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.pidFile.Release(); err != nil {
		logger.Error().Err(err).Msg("Failed to release PID file")
	}

	if err := d.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close daemon resources")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Close releases the store, tracing and the audit log. It is idempotent and
// is all a one-shot command needs after New.
func (d *Daemon) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	var errs []error
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store: %w", err))
		}
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit logger: %w", err))
	}

	return errors.Join(errs...)
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Watching: d.running && d.watcher != nil && d.watcher.IsRunning(),
		Serving:  d.running && d.server != nil,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
	}

	if !d.Status().Running {
		return
	}
	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

func (d *Daemon) GetStore() vectorstore.Store {
	return d.store
}

func (d *Daemon) GetIndexer() *memory.MemoryIndexer {
	return d.indexer
}

func (d *Daemon) GetRetriever() *memory.PointerRetriever {
	return d.retriever
}

func (d *Daemon) GetWatcher() *memory.DebouncedWatcher {
	return d.watcher
}

func (d *Daemon) GetServer() *server.Server {
	return d.server
}
