// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the layered runtime configuration: programmatic
// defaults, an optional YAML file, then METIS_ environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration tree.
type Config struct {
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Engine      EngineConfig      `koanf:"engine"`
	LLM         LLMConfig         `koanf:"llm"`
	Memory      MemoryConfig      `koanf:"memory"`
	Resilience  ResilienceConfig  `koanf:"resilience"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Feedback    FeedbackConfig    `koanf:"feedback"`
	Screening   ScreeningConfig   `koanf:"screening"`
	MCP         MCPConfig         `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	Exporter    string `koanf:"exporter"` // stdout, otlp
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
}

type EngineConfig struct {
	MaxSteps      int    `koanf:"max_steps"`
	FallbackSkill string `koanf:"fallback_skill"`
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, openai, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"` // empty means the provider's own default endpoint
	APIKey   string `koanf:"api_key"`
}

type MemoryConfig struct {
	Enabled  bool           `koanf:"enabled"`
	Dim      int            `koanf:"dim"`
	DataDir  string         `koanf:"data_dir"`
	LongTerm LongTermConfig `koanf:"long_term"`
	Embedder EmbedderConfig `koanf:"embedder"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
}

type LongTermConfig struct {
	Driver string `koanf:"driver"` // local, qdrant, inmemory
}

type EmbedderConfig struct {
	Driver   string `koanf:"driver"` // hashing, ollama, none
	Model    string `koanf:"model"`
	Fallback bool   `koanf:"fallback"` // degrade to hashing when the driver fails
}

type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
}

type ResilienceConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	RecoveryTimeout  time.Duration `koanf:"recovery_timeout"`
	HalfOpenTrials   int           `koanf:"half_open_trials"`
	SharedDriver     string        `koanf:"shared_driver"` // none, sqlite
	SharedPath       string        `koanf:"shared_path"`
}

type MaintenanceConfig struct {
	Enabled            bool          `koanf:"enabled"`
	CompactionInterval time.Duration `koanf:"compaction_interval"`
	CompactionCron     string        `koanf:"compaction_cron"`
	PruneInterval      time.Duration `koanf:"prune_interval"`
	FeedbackRetention  time.Duration `koanf:"feedback_retention"`
}

type FeedbackConfig struct {
	Driver string `koanf:"driver"` // none, log, memory, sqlite
	Path   string `koanf:"path"`
}

// ScreeningConfig controls boundary screening of tasks and answers.
// The deny list is YAML-only for the same reason as MCP servers.
type ScreeningConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Injection     bool     `koanf:"injection"`      // block prompt injection attempts
	Credentials   bool     `koanf:"credentials"`    // block tasks carrying credentials
	Deny          []string `koanf:"deny"`           // operator terms that block a task
	RedactAnswers bool     `koanf:"redact_answers"` // scrub secrets from final answers
}

// MCPConfig lists external MCP servers whose tools are registered as
// skills at startup. Slices do not layer well through environment
// variables, so servers are configured in the YAML file only.
type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Name      string   `koanf:"name"`
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
	Allow     []string `koanf:"allow"` // tool name globs to register; empty admits all
	Deny      []string `koanf:"deny"`  // tool name globs to skip; wins over allow
}

// Load reads configuration from defaults, then the optional YAML file at
// path, then METIS_ environment variables. In env names a double
// underscore is a literal underscore inside a key and a single one a
// section separator, so METIS_ENGINE_MAX__STEPS maps to engine.max_steps.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.service_name", "metis")
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.endpoint", "localhost:4317")
	k.Set("telemetry.insecure", true)

	k.Set("engine.max_steps", 6)
	k.Set("engine.fallback_skill", "question_answering")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "llama3.2")
	k.Set("llm.base_url", "")
	k.Set("llm.api_key", "")

	k.Set("memory.enabled", true)
	k.Set("memory.dim", 384)
	k.Set("memory.data_dir", "./data")
	k.Set("memory.long_term.driver", "local")
	k.Set("memory.embedder.driver", "hashing")
	k.Set("memory.embedder.model", "nomic-embed-text")
	k.Set("memory.embedder.fallback", false)
	k.Set("memory.qdrant.host", "localhost")
	k.Set("memory.qdrant.port", 6334)
	k.Set("memory.qdrant.collection", "metis_memory")

	k.Set("resilience.failure_threshold", 5)
	k.Set("resilience.recovery_timeout", "30s")
	k.Set("resilience.half_open_trials", 1)
	k.Set("resilience.shared_driver", "none")
	k.Set("resilience.shared_path", "./data/metis.db")

	k.Set("maintenance.enabled", true)
	k.Set("maintenance.compaction_interval", "1h")
	k.Set("maintenance.compaction_cron", "")
	k.Set("maintenance.prune_interval", "1h")
	k.Set("maintenance.feedback_retention", "720h")

	k.Set("feedback.driver", "none")
	k.Set("feedback.path", "./data/metis.db")

	k.Set("screening.enabled", false)
	k.Set("screening.injection", true)
	k.Set("screening.credentials", true)
	k.Set("screening.redact_answers", true)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (METIS_LOG_LEVEL -> log.level,
	//    METIS_ENGINE_MAX__STEPS -> engine.max_steps)
	if err := k.Load(env.Provider("METIS_", ".", envKeyTransform), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "METIS_"))
	// A double underscore survives as a literal underscore inside a key;
	// single underscores separate sections.
	s = strings.ReplaceAll(s, "__", "\x00")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "\x00", "_")
}
