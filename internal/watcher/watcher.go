// Package watcher monitors the loaded processing-log file and signals the
// session to re-parse the macro when the file changes on disk.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one log file for writes and sends debounced signals.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logPath   string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	LogPath     string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(logPath string) Config {
	return Config{
		LogPath:     logPath,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a watcher for the configured log file.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		logPath:   cfg.LogPath,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the directory containing the log file. Watching the
// directory instead of the file survives editors that replace-on-save.
// Returns a channel that receives a signal after each settled change.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.logPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send, drop if a signal is already queued.
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			// Errors are swallowed; callers wanting visibility can wrap
			// the watcher.

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a re-parse.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Base(event.Name) == filepath.Base(w.logPath)
}
