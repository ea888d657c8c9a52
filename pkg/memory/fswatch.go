package memory

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FSNotifySource is a FileWatchSource backed by fsnotify. The watch is not
// recursive. fsnotify reports a rename as Rename on the old name followed by
// Create on the new one, so moves arrive as moved_from plus created.
type FSNotifySource struct {
	logger zerolog.Logger
}

// NewFSNotifySource creates a source.
func NewFSNotifySource(logger zerolog.Logger) *FSNotifySource {
	return &FSNotifySource{logger: logger.With().Str("component", "fsnotify").Logger()}
}

// Watch starts a new fsnotify watcher on root. The watcher is closed and the
// channel drained when ctx is done.
func (s *FSNotifySource) Watch(ctx context.Context, root string) (<-chan FileEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	events := make(chan FileEvent, 100)

	go func() {
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				kind, ok := eventKind(event.Op)
				if !ok {
					continue
				}

				ev := FileEvent{Path: event.Name, Kind: kind}
				if kind == EventCreated || kind == EventModified {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						ev.IsDir = true
					}
				}

				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error().Err(err).Msg("File watcher error")
			}
		}
	}()

	return events, nil
}

func eventKind(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreated, true
	case op.Has(fsnotify.Write):
		return EventModified, true
	case op.Has(fsnotify.Remove):
		return EventDeleted, true
	case op.Has(fsnotify.Rename):
		return EventMovedFrom, true
	default:
		return "", false
	}
}
