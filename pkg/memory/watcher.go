package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/internal/tracing"
)

// EventKind is the kind of a raw filesystem event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventModified  EventKind = "modified"
	EventDeleted   EventKind = "deleted"
	EventMovedFrom EventKind = "moved_from"
	EventMovedTo   EventKind = "moved_to"
)

// FileEvent is one raw event for a path under the watched root.
type FileEvent struct {
	Path  string
	Kind  EventKind
	IsDir bool
}

// FileWatchSource streams events for the direct children of root until ctx
// is done, then closes the channel.
type FileWatchSource interface {
	Watch(ctx context.Context, root string) (<-chan FileEvent, error)
}

// Updater is the part of MemoryIndexer the watcher drives.
type Updater interface {
	Update(ctx context.Context) (UpdateStats, error)
}

// WatchState is the debounce state.
type WatchState int

const (
	StateIdle WatchState = iota
	StatePending
)

func (s WatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	default:
		return "unknown"
	}
}

// WatcherConfig holds DebouncedWatcher dependencies.
type WatcherConfig struct {
	Root     string
	Source   FileWatchSource
	Indexer  Updater
	Debounce time.Duration
	Logger   zerolog.Logger
}

// DebouncedWatcher coalesces bursts of target-file events into one Update
// call, issued once no event has arrived for the debounce period.
type DebouncedWatcher struct {
	root     string
	source   FileWatchSource
	indexer  Updater
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	state   WatchState
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDebouncedWatcher creates a stopped watcher.
func NewDebouncedWatcher(cfg WatcherConfig) (*DebouncedWatcher, error) {
	if cfg.Source == nil {
		return nil, errors.New("watch source is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	observability.EnsureRegistered()

	return &DebouncedWatcher{
		root:     cfg.Root,
		source:   cfg.Source,
		indexer:  cfg.Indexer,
		debounce: cfg.Debounce,
		logger:   cfg.Logger.With().Str("component", "memory_watcher").Logger(),
	}, nil
}

// Start begins observing the root. A missing root is logged and returned as
// ErrWatchRoot; starting a running watcher is a no-op.
func (w *DebouncedWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn().Msg("Watcher already running")
		return nil
	}

	if !DirExists(w.root) {
		err := fmt.Errorf("%w: %s", ErrWatchRoot, w.root)
		w.logger.Error().Err(err).Msg("Cannot start memory watcher")
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	events, err := w.source.Watch(wctx, w.root)
	if err != nil {
		cancel()
		err = fmt.Errorf("%w: %v", ErrWatchRoot, err)
		w.logger.Error().Err(err).Msg("Cannot start memory watcher")
		return err
	}

	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.running = true
	w.state = StateIdle

	go w.loop(wctx, events, done)

	w.logger.Info().
		Str("root", w.root).
		Dur("debounce", w.debounce).
		Msg("Memory watcher started")
	return nil
}

// Stop cancels any pending timer and waits for the loop to exit. An Update
// already in flight runs to completion first.
func (w *DebouncedWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info().Msg("Memory watcher stopped")
}

// IsRunning reports whether the watcher is observing events.
func (w *DebouncedWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// State returns the current debounce state.
func (w *DebouncedWatcher) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *DebouncedWatcher) setState(s WatchState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *DebouncedWatcher) loop(ctx context.Context, events <-chan FileEvent, done chan struct{}) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	changes := make(map[string]EventKind)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		w.mu.Lock()
		if w.done == done {
			w.running = false
			w.state = StateIdle
		}
		w.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				w.logger.Warn().Msg("Watch source closed")
				return
			}
			if ev.IsDir || !IsTargetFile(ev.Path) {
				continue
			}

			observability.RecordWatchEvent(string(ev.Kind))
			changes[filepath.Base(ev.Path)] = normalizeKind(ev.Kind)
			w.logger.Debug().
				Str("file", filepath.Base(ev.Path)).
				Str("kind", string(ev.Kind)).
				Msg("Memory file change detected")

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			w.setState(StatePending)

		case <-fire:
			timer, fire = nil, nil
			batch := changes
			changes = make(map[string]EventKind)
			w.setState(StateIdle)
			w.trigger(ctx, batch)
		}
	}
}

// trigger runs one Update. Failures are logged; the watcher keeps running.
func (w *DebouncedWatcher) trigger(ctx context.Context, changes map[string]EventKind) {
	observability.RecordWatchTrigger()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Memory index update panicked")
		}
	}()

	w.logger.Info().Strs("changes", describeChanges(changes)).Msg("Memory files changed, updating index")

	stats, err := w.indexer.Update(tracing.NewRunContext(tracing.CloneContext(ctx), tracing.TriggerWatcher))
	if err != nil {
		w.logger.Error().Err(err).Msg("Memory index update failed")
		return
	}

	w.logger.Info().
		Int("files_added", stats.FilesAdded).
		Int("files_updated", stats.FilesUpdated).
		Int("files_removed", stats.FilesRemoved).
		Int("chunks_added", stats.ChunksAdded).
		Int("chunks_removed", stats.ChunksRemoved).
		Int("errors", len(stats.Errors)).
		Msg("Memory index updated")
}

// normalizeKind maps a rename pair onto delete and create.
func normalizeKind(kind EventKind) EventKind {
	switch kind {
	case EventMovedFrom:
		return EventDeleted
	case EventMovedTo:
		return EventCreated
	default:
		return kind
	}
}

func describeChanges(changes map[string]EventKind) []string {
	out := make([]string, 0, len(changes))
	for path, kind := range changes {
		out = append(out, string(kind)+": "+path)
	}
	sort.Strings(out)
	return out
}
