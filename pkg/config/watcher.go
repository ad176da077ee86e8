package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 300 * time.Millisecond

// WatchConfig watches files and emits a debounced signal after each write or
// recreate. The returned channel closes when ctx is done.
func WatchConfig(ctx context.Context, files ...string) <-chan struct{} {
	reloadCh := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve watch path", "file", file)
			continue
		}
		if err := watcher.Add(absPath); err != nil {
			slog.Warn("Could not watch file", "file", file, "error", err)
			continue
		}
		slog.Debug("Watching configuration file", "file", absPath)
	}

	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		var timer *time.Timer
		fire := make(chan string, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case name := <-fire:
				slog.Info("Configuration change detected", "file", name)
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// editors often save by rename+create
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				name := event.Name
				timer = time.AfterFunc(debounceDuration, func() {
					select {
					case fire <- name:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}

// SystemHolder serves the current SystemConfig to concurrent readers.
type SystemHolder struct {
	v atomic.Pointer[SystemConfig]
}

// NewSystemHolder wraps cfg (defaults when nil).
func NewSystemHolder(cfg *SystemConfig) *SystemHolder {
	if cfg == nil {
		cfg = DefaultSystemConfig()
	}
	h := &SystemHolder{}
	h.v.Store(cfg)
	return h
}

// Get returns the current configuration. Callers must not mutate it.
func (h *SystemHolder) Get() *SystemConfig {
	return h.v.Load()
}

// Set replaces the current configuration.
func (h *SystemHolder) Set(cfg *SystemConfig) {
	h.v.Store(cfg)
}

// Watch reloads path into the holder on every change until ctx is done.
// onReload, when non-nil, is called with each new configuration.
func (h *SystemHolder) Watch(ctx context.Context, path string, onReload func(*SystemConfig)) {
	ch := WatchConfig(ctx, path)
	go func() {
		for range ch {
			cfg := LoadSystemConfig(path)
			h.Set(cfg)
			slog.Info("System config reloaded",
				"llm_timeout_ms", cfg.LLMTimeoutMs,
				"tool_timeout_ms", cfg.ToolTimeoutMs,
				"max_tool_rounds", cfg.MaxToolRounds)
			if onReload != nil {
				onReload(cfg)
			}
		}
	}()
}
