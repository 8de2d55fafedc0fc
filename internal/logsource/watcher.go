package logsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
)

// Watcher publishes EventLogChanged when a file below the controller
// directory changes. Bursts of changes within the debounce period result
// in one event carrying the last changed path.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	events   interfaces.EventService
	logger   arbor.ILogger
}

// NewWatcher watches root and its agent subdirectories
func NewWatcher(root string, debounce time.Duration, events interfaces.EventService, logger arbor.ILogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		events:   events,
		logger:   logger,
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.add(filepath.Join(root, entry.Name()))
		}
	}

	return w, nil
}

func (w *Watcher) add(path string) {
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Cannot watch directory")
		return
	}
	w.logger.Trace().Str("path", path).Msg("Watching directory")
}

// WatchList returns the watched directories
func (w *Watcher) WatchList() []string {
	return w.fsw.WatchList()
}

// Run forwards changes until ctx is cancelled, then closes the watcher
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	pending := ""

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			// New agent directories are picked up as they appear
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.add(ev.Name)
					continue
				}
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}

			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.logger.Debug().Str("path", pending).Msg("Log change detected")
			if err := w.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventLogChanged,
				Payload: pending,
			}); err != nil {
				w.logger.Warn().Err(err).Msg("Failed to publish log change")
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}
