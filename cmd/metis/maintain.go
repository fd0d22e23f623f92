// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/runtime"
	"github.com/metis-ai/metis/pkg/telemetry"
)

const stopTimeout = 5 * time.Second

// runMaintain runs the maintenance daemon: store compaction, feedback
// pruning, and the memory-stats gauge, each on its own periodic runner.
func runMaintain(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("maintain", flag.ContinueOnError)
	once := cmd.Bool("once", false, "Run every maintenance job once and exit")
	watch := cmd.Bool("watch", false, "Watch the config file and apply retention changes live")
	statsInterval := cmd.Duration("stats-interval", time.Minute, "How often to refresh the memory stats gauge")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg, cfgPath, err := loadConfig(global)
	if err != nil {
		fatal(err)
	}
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if !cfg.Maintenance.Enabled {
		logger.Info("maintenance is disabled in config; nothing to do")
		return
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fatal(err)
	}
	defer app.close()

	// Retention is read through the reloadable holder on every prune tick,
	// so a watched config file can shorten or extend it without a restart.
	rcfg := config.NewReloadableConfig(cfg)
	if *watch && cfgPath != "" {
		watcher, _, err := config.Watch(ctx, cfgPath, config.WithWatchLogger(logger))
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		} else {
			watcher.OnChange(rcfg.Update)
		}
	}

	runners := buildRunners(app, rcfg, *statsInterval, logger)
	if len(runners) == 0 {
		logger.Info("no maintenance jobs for this configuration; nothing to do")
		return
	}

	if *once {
		for _, r := range runners {
			if err := r.TriggerOnce(ctx); err != nil {
				logger.Error("maintenance job failed", "runner", r.Name(), "error", err)
			}
		}
		return
	}

	for _, r := range runners {
		if err := r.Start(ctx); err != nil {
			fatal(fmt.Errorf("start %s: %w", r.Name(), err))
		}
		logger.Info("maintenance job scheduled", "runner", r.Name())
	}

	logger.Info("maintenance daemon running", "jobs", len(runners))
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for _, r := range runners {
		if err := r.Stop(stopCtx); err != nil {
			logger.Warn("runner did not stop cleanly", "runner", r.Name(), "error", err)
		}
		stats := r.Stats()
		logger.Info("maintenance job finished",
			"runner", r.Name(),
			"total_runs", stats.TotalRuns,
			"successful", stats.SuccessfulRuns,
			"failed", stats.FailedRuns,
		)
	}
}

func buildRunners(a *app, rcfg *config.ReloadableConfig, statsInterval time.Duration, logger *slog.Logger) []*runtime.PeriodicRunner {
	cfg := rcfg.Get()
	var runners []*runtime.PeriodicRunner

	if a.compactor != nil {
		opts := []runtime.RunnerOption{
			runtime.WithLogger(logger),
			runtime.WithEmitter(a.emitter),
			runtime.RunImmediately(false),
		}
		if cfg.Maintenance.CompactionCron != "" {
			opts = append(opts, runtime.WithCron(cfg.Maintenance.CompactionCron))
		}
		runners = append(runners, runtime.NewPeriodicRunner("memory-compaction",
			runtime.CompactionTick(a.compactor, logger),
			cfg.Maintenance.CompactionInterval, opts...))
	}

	if a.pruner != nil {
		tick := func(ctx context.Context) error {
			retention := rcfg.Get().Maintenance.FeedbackRetention
			return runtime.FeedbackPruneTick(a.pruner, retention, logger)(ctx)
		}
		runners = append(runners, runtime.NewPeriodicRunner("feedback-prune", tick,
			cfg.Maintenance.PruneInterval,
			runtime.WithLogger(logger),
			runtime.WithEmitter(a.emitter),
			runtime.RunImmediately(false)))
	}

	if a.facade != nil {
		tick := func(ctx context.Context) error {
			stats, err := a.facade.Stats(ctx)
			if err != nil {
				return err
			}
			for tier, count := range stats {
				a.metrics.RecordMemoryRecords(ctx, string(tier), int64(count))
			}
			return nil
		}
		runners = append(runners, runtime.NewPeriodicRunner("memory-stats", tick,
			statsInterval,
			runtime.WithLogger(logger),
			runtime.WithEmitter(a.emitter)))
	}

	return runners
}
