package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the tunable subset of the configuration whenever the
// overlay file changes. Static settings (table name, JWT secret, addresses)
// never change at runtime; only Tunables move.
type Watcher struct {
	mu       sync.RWMutex
	tunables Tunables

	path      string
	base      Tunables
	logger    *zap.Logger
	onReload  []func(Tunables)
	fsWatcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over cfg's overlay file. When cfg has no
// overlay file the watcher is inert and Tunables always returns the values
// loaded at startup.
func NewWatcher(cfg *Config, logger *zap.Logger) *Watcher {
	return &Watcher{
		tunables: cfg.Tunables,
		base:     cfg.Tunables,
		path:     cfg.ConfigFile,
		logger:   logger,
	}
}

// Tunables returns the current tunable settings.
func (w *Watcher) Tunables() Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tunables
}

// OnReload registers a callback invoked after every successful reload.
// Callbacks must be registered before Start.
func (w *Watcher) OnReload(fn func(Tunables)) {
	w.onReload = append(w.onReload, fn)
}

// Start begins watching the overlay file until ctx is canceled. It returns
// immediately; reloads happen on a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file. Editors and config maps replace
	// the file by rename, which drops a direct file watch.
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		fsWatcher.Close()
		return err
	}
	w.fsWatcher = fsWatcher

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.fsWatcher.Close()
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// reload re-applies the overlay on top of the startup values. A malformed
// file keeps the previous settings.
func (w *Watcher) reload() {
	cfg := &Config{Tunables: w.base}
	if err := cfg.applyOverlay(w.path); err != nil {
		w.logger.Warn("Ignoring bad config overlay", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.tunables = cfg.Tunables
	w.mu.Unlock()

	w.logger.Info("Reloaded config overlay",
		zap.String("path", w.path),
		zap.Int("rateLimitPerMinute", cfg.Tunables.RateLimitPerMinute),
		zap.Duration("queryCacheTTL", cfg.Tunables.QueryCacheTTL),
	)
	for _, fn := range w.onReload {
		fn(cfg.Tunables)
	}
}
