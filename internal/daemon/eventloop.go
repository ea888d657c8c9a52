package daemon

import (
	"context"
	"time"

	"github.com/harun/memdex/internal/observability"
)

const defaultTickInterval = 30 * time.Second

// EventLoop handles periodic maintenance while the daemon runs
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: defaultTickInterval,
	}
}

// Run ticks until ctx is cancelled
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Debug().Dur("interval", e.interval).Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Debug().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks refreshes the index gauges so /metrics stays current between
// runs, and logs the watcher state.
func (e *EventLoop) processTasks(ctx context.Context) {
	status := e.daemon.indexer.Status(ctx)
	observability.SetIndexSize(status.TotalFilesIndexed, status.TotalChunks)

	ev := e.daemon.logger.Debug().
		Int("files", status.TotalFilesIndexed).
		Int("chunks", status.TotalChunks)
	if w := e.daemon.watcher; w != nil {
		ev = ev.Str("watcher_state", w.State().String())
	}
	ev.Msg("Index status")
}
