// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/metis-ai/metis/pkg/agent"
	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/feedback"
	"github.com/metis-ai/metis/pkg/llm"
	"github.com/metis-ai/metis/pkg/mcp"
	"github.com/metis-ai/metis/pkg/memory"
	ollamaembed "github.com/metis-ai/metis/pkg/memory/ollama"
	"github.com/metis-ai/metis/pkg/memory/qdrant"
	"github.com/metis-ai/metis/pkg/planner"
	"github.com/metis-ai/metis/pkg/resilience"
	"github.com/metis-ai/metis/pkg/runtime"
	"github.com/metis-ai/metis/pkg/screening"
	"github.com/metis-ai/metis/pkg/skills"
	"github.com/metis-ai/metis/pkg/telemetry"
)

// app holds the assembled process: every collaborator is constructed here
// once and passed down explicitly.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	emitter  core.EventEmitter
	registry *skills.Registry
	breakers *resilience.Registry
	facade   *memory.Facade
	sink     feedback.Sink
	engine   *agent.Agent

	// compactor and pruner are nil when the configured backends have
	// nothing to compact or prune.
	compactor runtime.Compactor
	pruner    runtime.FeedbackPruner

	shutdownTelemetry telemetry.ShutdownFunc
	closers           []func() error
}

// buildApp wires the whole dependency graph from config: telemetry, the
// event pipeline, the model provider, memory, resilience, feedback, the
// skill registry, and finally the engine.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     version,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.shutdownTelemetry = shutdown
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	a.metrics = metrics
	a.emitter = telemetry.NewEventBridge(metrics, core.LoggingEmitter{Logger: logger})

	provider, err := newProvider(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Memory.Enabled {
		if err := a.buildMemory(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	if err := a.buildBreakers(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.buildFeedback(); err != nil {
		a.close()
		return nil, err
	}

	a.registry = skills.NewRegistry()
	if err := a.registry.Register(skills.NewQuestionAnswering(provider, cfg.LLM.Model)); err != nil {
		a.close()
		return nil, err
	}
	router := planner.NewKeywordRouter(cfg.Engine.FallbackSkill)
	if a.facade != nil {
		if err := a.registry.Register(skills.NewMemorySearch()); err != nil {
			a.close()
			return nil, err
		}
		router.AddRule(skills.MemorySearchSkillName, "remember", "recall", "memory", "stored")
	}

	if err := a.connectMCPServers(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.engine = agent.New(a.registry,
		agent.WithRouter(router),
		agent.WithMemory(a.facade),
		agent.WithBreakers(a.breakers),
		agent.WithFeedback(a.sink),
		agent.WithScreen(newScreen(cfg)),
		agent.WithMaxSteps(cfg.Engine.MaxSteps),
		agent.WithFallbackSkill(cfg.Engine.FallbackSkill),
		agent.WithEvents(a.emitter),
		agent.WithLogger(logger),
	)
	return a, nil
}

func (a *app) buildMemory(ctx context.Context) error {
	embedder, err := newEmbedder(a.cfg, a.logger)
	if err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Memory.LongTerm.Driver) {
	case "local", "":
		dataDir := a.cfg.Memory.DataDir
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		db, err := sql.Open("sqlite", filepath.Join(dataDir, "metis.db"))
		if err != nil {
			return fmt.Errorf("open memory database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		store, err := memory.NewStore(memory.StoreConfig{
			DB:        db,
			IndexPath: filepath.Join(dataDir, "memory.index"),
			Dimension: a.cfg.Memory.Dim,
			Embedder:  embedder,
		})
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.compactor = store
		a.facade = memory.NewFacade(memory.WithLongTerm(store))

	case "qdrant":
		qc := a.cfg.Memory.Qdrant
		store, err := qdrant.New(qdrant.Config{
			Addr:       fmt.Sprintf("%s:%d", qc.Host, qc.Port),
			Collection: qc.Collection,
			Dimension:  a.cfg.Memory.Dim,
			Embedder:   embedder,
		})
		if err != nil {
			return fmt.Errorf("connect qdrant: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("ensure qdrant collection: %w", err)
		}
		a.facade = memory.NewFacade(memory.WithLongTerm(store))

	case "inmemory":
		a.facade = memory.NewFacade()

	default:
		return fmt.Errorf("unknown memory driver: %s", a.cfg.Memory.LongTerm.Driver)
	}
	return nil
}

// buildBreakers creates the breaker registry. Breakers whose SLA leaves a
// field zero pick up the configured defaults; with a shared driver the
// state lives in SQLite so concurrent processes see the same circuit.
func (a *app) buildBreakers() error {
	rc := a.cfg.Resilience

	var stateStore resilience.StateStore
	if strings.ToLower(rc.SharedDriver) == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(rc.SharedPath), 0o755); err != nil {
			return fmt.Errorf("create breaker state dir: %w", err)
		}
		db, err := sql.Open("sqlite", rc.SharedPath)
		if err != nil {
			return fmt.Errorf("open breaker state database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store, err := resilience.NewSQLiteStateStore(db)
		if err != nil {
			return fmt.Errorf("init breaker state store: %w", err)
		}
		stateStore = store
	}

	factory := func(name string, bc resilience.BreakerConfig) resilience.Breaker {
		if bc.FailureThreshold <= 0 {
			bc.FailureThreshold = rc.FailureThreshold
		}
		if bc.RecoveryTimeout <= 0 {
			bc.RecoveryTimeout = rc.RecoveryTimeout
		}
		if bc.HalfOpenTrials <= 0 {
			bc.HalfOpenTrials = rc.HalfOpenTrials
		}
		bc.Name = name
		if stateStore != nil {
			return resilience.NewSharedBreaker(stateStore, bc, a.logger)
		}
		return resilience.NewCircuitBreaker(bc)
	}
	a.breakers = resilience.NewRegistry(resilience.WithBreakerFactory(factory))
	return nil
}

func (a *app) buildFeedback() error {
	switch strings.ToLower(a.cfg.Feedback.Driver) {
	case "none", "":
		a.sink = feedback.NoopSink{}
	case "log":
		a.sink = feedback.NewSlogSink(a.logger)
	case "memory":
		sink := feedback.NewMemorySink()
		a.sink = sink
		a.pruner = sink
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(a.cfg.Feedback.Path), 0o755); err != nil {
			return fmt.Errorf("create feedback dir: %w", err)
		}
		db, err := sql.Open("sqlite", a.cfg.Feedback.Path)
		if err != nil {
			return fmt.Errorf("open feedback database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		sink, err := feedback.NewSQLiteSink(db)
		if err != nil {
			return fmt.Errorf("init feedback sink: %w", err)
		}
		a.sink = sink
		a.pruner = sink
	default:
		return fmt.Errorf("unknown feedback driver: %s", a.cfg.Feedback.Driver)
	}
	return nil
}

// connectMCPServers dials each configured MCP server and registers its
// tools as skills. An unreachable server fails startup. Per-server
// allow/deny globs decide which advertised tools get registered.
func (a *app) connectMCPServers(ctx context.Context) error {
	for _, sc := range a.cfg.MCP.Servers {
		client, err := dialMCP(sc)
		if err != nil {
			return fmt.Errorf("connect mcp server %s: %w", sc.Name, err)
		}
		a.closers = append(a.closers, client.Close)

		remote, err := mcp.SkillsFromClient(ctx, client)
		if err != nil {
			return fmt.Errorf("list mcp tools from %s: %w", sc.Name, err)
		}
		filter := mcp.NewToolFilter(sc.Allow, sc.Deny)
		for _, sk := range remote {
			if !filter.Admit(sk.Name()) {
				a.logger.Debug("skipped mcp tool", "server", sc.Name, "tool", sk.Name())
				continue
			}
			if err := a.registry.Register(sk); err != nil {
				return fmt.Errorf("register mcp tool from %s: %w", sc.Name, err)
			}
			a.logger.Info("registered mcp tool", "server", sc.Name, "tool", sk.Name())
		}
	}
	return nil
}

func dialMCP(sc config.MCPServerConfig) (*mcp.Client, error) {
	switch strings.ToLower(sc.Transport) {
	case "stdio", "":
		if sc.Command == "" {
			return nil, fmt.Errorf("stdio transport needs a command")
		}
		return mcp.NewClientWithStdio(sc.Command, sc.Args)
	case "http":
		if sc.URL == "" {
			return nil, fmt.Errorf("http transport needs a url")
		}
		return mcp.NewClientWithStreamableHTTP(sc.URL)
	default:
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama", "":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "openai":
		return llm.NewOpenAICompat(cfg.LLM.BaseURL, cfg.LLM.APIKey), nil
	case "mock":
		return &llm.MockProvider{Response: "This is a mock response."}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}

// newScreen assembles boundary screening from config; nil when disabled.
// The secret redactor serves double duty: credential blocking inbound and
// answer scrubbing outbound.
func newScreen(cfg *config.Config) *screening.Screen {
	sc := cfg.Screening
	if !sc.Enabled {
		return nil
	}

	var opts []screening.Option
	if sc.Injection {
		opts = append(opts, screening.WithRule(screening.NewInjectionRule()))
	}
	if len(sc.Deny) > 0 {
		opts = append(opts, screening.WithRule(screening.NewDenylistRule(sc.Deny...)))
	}
	secrets := screening.NewSecretRedactor()
	if sc.Credentials {
		opts = append(opts, screening.WithRule(secrets))
	}
	if sc.RedactAnswers {
		opts = append(opts, screening.WithRedactor(secrets))
	}
	return screening.New(opts...)
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) (memory.Embedder, error) {
	switch strings.ToLower(cfg.Memory.Embedder.Driver) {
	case "hashing", "":
		return memory.NewHashingEmbedder(cfg.Memory.Dim), nil
	case "ollama":
		baseURL := cfg.LLM.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		remote := ollamaembed.NewEmbedder(baseURL, cfg.Memory.Embedder.Model,
			ollamaembed.WithDimension(cfg.Memory.Dim))
		if cfg.Memory.Embedder.Fallback {
			return memory.NewFallbackEmbedder(remote, memory.NewHashingEmbedder(cfg.Memory.Dim), logger), nil
		}
		return remote, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedder driver: %s", cfg.Memory.Embedder.Driver)
	}
}

// close tears the app down in reverse construction order. Telemetry goes
// last so shutdown flushes spans recorded by the closers.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}
	a.closers = nil
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
		a.shutdownTelemetry = nil
	}
}
