// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"sync"

	"github.com/knadh/koanf/providers/file"
)

// Watcher reloads configuration when the watched file changes and
// notifies registered listeners. Change detection rides the koanf file
// provider's fsnotify watch, so editor rename-and-replace saves are
// picked up too.
type Watcher struct {
	mu        sync.RWMutex
	path      string
	provider  *file.File
	config    *Config
	listeners []func(*Config)
	watching  bool
	logger    *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for the config file at path and performs
// the initial load.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.config = cfg
	if path != "" {
		w.provider = file.Provider(path)
	}
	return w, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins watching for file changes. Without a file path it is a
// no-op; defaults and environment cannot change underneath a process.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.provider == nil || w.watching {
		return nil
	}
	if err := w.provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			w.logger.Error("config watch error", "error", err)
			return
		}
		w.reload()
	}); err != nil {
		return err
	}
	w.watching = true
	w.logger.Info("config watch started", "path", w.path)
	return nil
}

// Stop ends watching. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.provider == nil || !w.watching {
		return nil
	}
	w.watching = false
	return w.provider.Unwatch()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("failed to reload config", "error", err)
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Watch creates a watcher for the given config path, starts it, and stops
// it when ctx ends. It returns the watcher and the initial config.
func Watch(ctx context.Context, configPath string, opts ...WatcherOption) (*Watcher, *Config, error) {
	watcher, err := NewWatcher(configPath, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Start(); err != nil {
		return nil, nil, err
	}
	go func() {
		<-ctx.Done()
		_ = watcher.Stop()
	}()
	return watcher, watcher.Config(), nil
}

// ReloadableConfig is a thread-safe holder for a Config that can be
// atomically swapped by an OnChange listener.
type ReloadableConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewReloadableConfig creates a holder around an initial config.
func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Update atomically replaces the configuration.
func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Engine returns the engine configuration.
func (r *ReloadableConfig) Engine() EngineConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Engine
}

// LLM returns the language model configuration.
func (r *ReloadableConfig) LLM() LLMConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.LLM
}

// Log returns the log configuration.
func (r *ReloadableConfig) Log() LogConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Log
}

// Telemetry returns the telemetry configuration.
func (r *ReloadableConfig) Telemetry() TelemetryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Telemetry
}
