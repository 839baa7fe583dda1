package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HealthChecker watches the settings store for corruption.
//
// A store that stops being valid JSON — a crashed writer, a stray editor —
// is backed up and reinitialized with an empty object, so callers never see
// a request-time parse failure. Checks run on filesystem events and on a
// periodic tick as a fallback.
type HealthChecker struct {
	settings *Settings
	logger   *slog.Logger
	interval time.Duration

	// onRepair, when set, is called after a corrupt store was reset.
	onRepair func()
}

// HealthOption configures a HealthChecker.
type HealthOption func(*HealthChecker)

// WithInterval sets the periodic check interval.
func WithInterval(d time.Duration) HealthOption {
	return func(h *HealthChecker) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithRepairCallback registers a callback invoked after each repair.
func WithRepairCallback(fn func()) HealthOption {
	return func(h *HealthChecker) {
		h.onRepair = fn
	}
}

// NewHealthChecker creates a checker for the given settings store.
func NewHealthChecker(settings *Settings, logger *slog.Logger, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		settings: settings,
		logger:   logger,
		interval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run watches until the context is cancelled. Filesystem watch failures
// degrade to tick-only checking rather than stopping the checker.
func (h *HealthChecker) Run(ctx context.Context) {
	var events chan fsnotify.Event

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		h.logger.Warn("store watcher unavailable, falling back to periodic checks", "error", err)
	} else {
		defer watcher.Close()
		// Watch the directory: the store file itself is replaced by rename
		// on every write, which would silently drop a file-level watch.
		if err := watcher.Add(filepath.Dir(h.settings.Path())); err != nil {
			h.logger.Warn("watching store directory failed", "error", err)
		} else {
			events = make(chan fsnotify.Event, 16)
			go forwardEvents(ctx, watcher, h.settings.Path(), events)
		}
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check()
		case <-events:
			h.Check()
		}
	}
}

// Check verifies the store once and repairs it if corrupt.
func (h *HealthChecker) Check() {
	_, err := h.settings.ReadRaw()
	if err == nil {
		return
	}
	if !errors.Is(err, ErrMalformedStore) {
		h.logger.Warn("settings store unreadable", "error", err)
		return
	}

	h.logger.Error("settings store is corrupt, reinitializing",
		"path", h.settings.Path())

	backup, err := h.settings.Repair()
	if err != nil {
		h.logger.Error("repairing settings store failed", "error", err)
		return
	}
	h.logger.Info("settings store reinitialized", "backup", backup)

	if h.onRepair != nil {
		h.onRepair()
	}
}

// forwardEvents filters watcher events down to writes touching the store
// file and forwards them, dropping events when the channel is full.
func forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, out chan<- fsnotify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case out <- ev:
			default:
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
