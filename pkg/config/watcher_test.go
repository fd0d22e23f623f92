// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDetectsChanges(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	initial := `llm:
  provider: ollama
  model: test-model
`
	if err := os.WriteFile(configPath, []byte(initial), 0644); err != nil {
		t.Fatalf("failed to write initial config: %v", err)
	}

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan *Config, 2)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if cfg := watcher.Config(); cfg.LLM.Model != "test-model" {
		t.Errorf("initial model = %q, want test-model", cfg.LLM.Model)
	}

	updated := `llm:
  provider: ollama
  model: updated-model
`
	if err := os.WriteFile(configPath, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to write updated config: %v", err)
	}

	select {
	case newCfg := <-changes:
		if newCfg.LLM.Model != "updated-model" {
			t.Errorf("reloaded model = %q, want updated-model", newCfg.LLM.Model)
		}
	case <-time.After(3 * time.Second):
		t.Error("timeout waiting for config change notification")
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("llm:\n  model: v1\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	watcher.OnChange(func(*Config) {
		select {
		case first <- struct{}{}:
		default:
		}
	})
	watcher.OnChange(func(*Config) {
		select {
		case second <- struct{}{}:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(configPath, []byte("llm:\n  model: v2\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	for i, ch := range []chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(3 * time.Second):
			t.Fatalf("listener %d never notified", i+1)
		}
	}
}

func TestWatcherStops(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = watcher.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

// A watcher without a file path still serves defaults and env; watching
// is a no-op.
func TestWatcherWithoutFile(t *testing.T) {
	watcher, err := NewWatcher("")
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if cfg := watcher.Config(); cfg.Engine.MaxSteps != 6 {
		t.Errorf("defaults not loaded: %+v", cfg.Engine)
	}
	if err := watcher.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWatchHelper(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine:\n  max_steps: 4\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := Watch(ctx, configPath)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer watcher.Stop()

	if cfg.Engine.MaxSteps != 4 {
		t.Errorf("engine.max_steps = %d, want 4", cfg.Engine.MaxSteps)
	}
}

func TestReloadableConfig(t *testing.T) {
	cfg1 := &Config{
		LLM:    LLMConfig{Model: "model-1"},
		Engine: EngineConfig{MaxSteps: 2},
	}
	cfg2 := &Config{
		LLM:    LLMConfig{Model: "model-2"},
		Engine: EngineConfig{MaxSteps: 8},
	}

	rc := NewReloadableConfig(cfg1)

	if rc.LLM().Model != "model-1" {
		t.Errorf("LLM().Model = %q, want model-1", rc.LLM().Model)
	}
	if rc.Engine().MaxSteps != 2 {
		t.Errorf("Engine().MaxSteps = %d, want 2", rc.Engine().MaxSteps)
	}

	rc.Update(cfg2)

	if rc.LLM().Model != "model-2" {
		t.Errorf("LLM().Model = %q after update, want model-2", rc.LLM().Model)
	}
	if rc.Get().Engine.MaxSteps != 8 {
		t.Errorf("Get().Engine.MaxSteps = %d, want 8", rc.Get().Engine.MaxSteps)
	}
}
