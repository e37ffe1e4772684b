package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce absorbs the burst of events editors produce on save.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher reloads the threshold file when it changes and delivers each
// valid result on Updates. Invalid files are logged and skipped, so the
// station keeps running on the last good thresholds.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	updates  chan Thresholds
	fs       *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. A nil logger uses slog.Default().
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger.With("component", "config"),
		updates:  make(chan Thresholds, 1),
	}
}

// Updates delivers reloaded thresholds. Only the newest pending value is kept.
func (w *Watcher) Updates() <-chan Thresholds {
	return w.updates
}

// Start begins watching until ctx is cancelled. The parent directory is
// watched so that atomic replace-by-rename is seen.
func (w *Watcher) Start(ctx context.Context) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fs = fs

	w.logger.Info("config watcher started", "path", w.path, "debounce", w.debounce)
	go w.watch(ctx)
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.fs == nil {
		return nil
	}
	return w.fs.Close()
}

func (w *Watcher) watch(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("config change detected", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	t, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", "error", err)
		return
	}

	select {
	case <-w.updates:
	default:
	}
	w.updates <- t
	w.logger.Info("config reloaded", "path", w.path)
}
