package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is implemented by components that can update their config at runtime.
type Reloadable interface {
	// OnConfigReload is called after a valid new configuration was loaded.
	// Errors are logged; other subscribers are still notified.
	OnConfigReload(newCfg *Config) error
}

// ReloadFunc adapts a plain function to Reloadable.
type ReloadFunc func(newCfg *Config) error

// OnConfigReload calls f(newCfg).
func (f ReloadFunc) OnConfigReload(newCfg *Config) error { return f(newCfg) }

// Reloader re-reads the configuration file on SIGHUP or, optionally, when
// the file changes on disk (debounced), and fans the result out to subscribers.
type Reloader struct {
	path      string
	current   atomic.Pointer[Config]
	logger    *slog.Logger
	debounce  time.Duration
	watchFile bool

	mu          sync.RWMutex
	subscribers []Reloadable
	observe     func(success bool)
}

// NewReloader creates a Reloader for the config file at path.
func NewReloader(path string, initial *Config, logger *slog.Logger) *Reloader {
	r := &Reloader{
		path:      path,
		logger:    logger,
		debounce:  initial.Reload.Debounce.Duration,
		watchFile: initial.Reload.WatchFile,
	}
	r.current.Store(initial)
	return r
}

// Register adds a component to receive reload notifications.
func (r *Reloader) Register(sub Reloadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// Observe sets a callback run after every reload attempt.
func (r *Reloader) Observe(fn func(success bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe = fn
}

// Current returns the active configuration. Safe for concurrent use.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Run watches for reload triggers until ctx is cancelled. It returns an
// error only when the file watcher cannot be set up.
func (r *Reloader) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	var watcher *fsnotify.Watcher
	if r.watchFile {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer w.Close()
		if err := w.Add(r.path); err != nil {
			return fmt.Errorf("watching config file %q: %w", r.path, err)
		}
		watcher = w
		events, watchErrs = w.Events, w.Errors
		r.logger.Info("config file watcher started", "path", r.path, "debounce", r.debounce)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case sig := <-sigCh:
			r.logger.Info("received signal, reloading config", "signal", sig)
			_ = r.Reload()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(r.debounce)
				fire = timer.C
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			r.logger.Error("file watcher error", "error", err)

		case <-fire:
			fire, timer = nil, nil
			// Editors often replace the file; re-arm the watch.
			_ = watcher.Add(r.path)
			_ = r.Reload()
		}
	}
}

// Reload reads and validates the config file, logs the diff, and notifies
// subscribers. An invalid file leaves the current config in place.
func (r *Reloader) Reload() error {
	newCfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("config reload failed, keeping current", "error", err, "path", r.path)
		r.notify(false)
		return fmt.Errorf("config reload: %w", err)
	}

	changes := Diff(r.current.Load(), newCfg)
	if len(changes) == 0 {
		r.logger.Info("config reload: no changes detected")
		r.notify(true)
		return nil
	}

	for _, c := range changes {
		attrs := []any{
			"field", c.Field,
			"old", fmt.Sprintf("%v", c.OldValue),
			"new", fmt.Sprintf("%v", c.NewValue),
		}
		if c.Reloadable {
			r.logger.Info("config change applied", attrs...)
		} else {
			r.logger.Warn("config change requires restart (ignored)", attrs...)
		}
	}

	r.current.Store(newCfg)

	r.mu.RLock()
	subs := append([]Reloadable(nil), r.subscribers...)
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.OnConfigReload(newCfg); err != nil {
			r.logger.Error("subscriber reload failed", "error", err, "subscriber", fmt.Sprintf("%T", sub))
		}
	}

	r.logger.Info("config_reloaded", "changes", len(changes), "path", r.path)
	r.notify(true)
	return nil
}

func (r *Reloader) notify(success bool) {
	r.mu.RLock()
	fn := r.observe
	r.mu.RUnlock()
	if fn != nil {
		fn(success)
	}
}
