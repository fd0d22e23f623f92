// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.Engine.MaxSteps != 6 {
		t.Errorf("engine.max_steps = %d, want 6", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.FallbackSkill != "question_answering" {
		t.Errorf("engine.fallback_skill = %q", cfg.Engine.FallbackSkill)
	}
	if !cfg.Memory.Enabled || cfg.Memory.LongTerm.Driver != "local" {
		t.Errorf("memory defaults = %+v", cfg.Memory)
	}
	if cfg.Memory.Dim != 384 {
		t.Errorf("memory.dim = %d, want 384", cfg.Memory.Dim)
	}
	if cfg.Memory.Embedder.Driver != "hashing" {
		t.Errorf("memory.embedder.driver = %q, want hashing", cfg.Memory.Embedder.Driver)
	}
	if cfg.Resilience.FailureThreshold != 5 || cfg.Resilience.RecoveryTimeout != 30*time.Second {
		t.Errorf("resilience defaults = %+v", cfg.Resilience)
	}
	if cfg.Maintenance.CompactionInterval != time.Hour {
		t.Errorf("maintenance.compaction_interval = %v, want 1h", cfg.Maintenance.CompactionInterval)
	}
	if cfg.Maintenance.FeedbackRetention != 720*time.Hour {
		t.Errorf("maintenance.feedback_retention = %v, want 720h", cfg.Maintenance.FeedbackRetention)
	}
	if cfg.Feedback.Driver != "none" {
		t.Errorf("feedback.driver = %q, want none", cfg.Feedback.Driver)
	}
	if cfg.Screening.Enabled || !cfg.Screening.Injection || !cfg.Screening.Credentials || !cfg.Screening.RedactAnswers {
		t.Errorf("screening defaults = %+v", cfg.Screening)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
log:
  level: debug
engine:
  max_steps: 3
maintenance:
  compaction_interval: 10m
memory:
  long_term:
    driver: qdrant
screening:
  enabled: true
  deny:
    - launch codes
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Engine.MaxSteps != 3 {
		t.Errorf("engine.max_steps = %d, want 3", cfg.Engine.MaxSteps)
	}
	if cfg.Maintenance.CompactionInterval != 10*time.Minute {
		t.Errorf("compaction_interval = %v, want 10m", cfg.Maintenance.CompactionInterval)
	}
	if cfg.Memory.LongTerm.Driver != "qdrant" {
		t.Errorf("long_term.driver = %q, want qdrant", cfg.Memory.LongTerm.Driver)
	}
	if !cfg.Screening.Enabled || len(cfg.Screening.Deny) != 1 || cfg.Screening.Deny[0] != "launch codes" {
		t.Errorf("screening = %+v", cfg.Screening)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.FallbackSkill != "question_answering" {
		t.Errorf("fallback_skill = %q, want the default", cfg.Engine.FallbackSkill)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("log.format = %q, want the default", cfg.Log.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("METIS_LOG_LEVEL", "warn")
	t.Setenv("METIS_ENGINE_MAX__STEPS", "9")
	t.Setenv("METIS_MEMORY_LONG__TERM_DRIVER", "inmemory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn from env", cfg.Log.Level)
	}
	if cfg.Engine.MaxSteps != 9 {
		t.Errorf("engine.max_steps = %d, want 9 from env", cfg.Engine.MaxSteps)
	}
	if cfg.Memory.LongTerm.Driver != "inmemory" {
		t.Errorf("long_term.driver = %q, want inmemory from env", cfg.Memory.LongTerm.Driver)
	}
}

// Environment overrides beat file values.
func TestLoadEnvBeatsFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("METIS_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want env to win", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() accepted a missing file")
	}
}

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"METIS_LOG_LEVEL", "log.level"},
		{"METIS_ENGINE_MAX__STEPS", "engine.max_steps"},
		{"METIS_MEMORY_LONG__TERM_DRIVER", "memory.long_term.driver"},
		{"METIS_TELEMETRY_SERVICE__NAME", "telemetry.service_name"},
		{"METIS_FEEDBACK_DRIVER", "feedback.driver"},
	}
	for _, tc := range tests {
		if got := envKeyTransform(tc.in); got != tc.want {
			t.Errorf("envKeyTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
