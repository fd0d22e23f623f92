// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime provides the background scheduling loop: a named
// periodic runner driving maintenance ticks on a fixed interval or a cron
// schedule, with contained failures and lifetime statistics.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/telemetry"
)

// RunnerStats is a point-in-time snapshot of a runner's counters.
type RunnerStats struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	LastStartedAt   time.Time
	LastCompletedAt time.Time
	LastError       string
	IntervalSeconds float64
	RunImmediately  bool
	Running         bool
}

// PeriodicRunner executes a tick function on a schedule. Tick errors and
// panics are counted and logged, never propagated to the loop; the
// schedule is unaffected by manual triggers.
type PeriodicRunner struct {
	name           string
	tick           func(context.Context) error
	interval       time.Duration
	schedule       cron.Schedule
	cronSpec       string
	cronErr        error
	runImmediately bool
	tickTimeout    time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
	emitter        core.EventEmitter

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	done            chan struct{}
	totalRuns       int64
	successfulRuns  int64
	failedRuns      int64
	lastStartedAt   time.Time
	lastCompletedAt time.Time
	lastError       string
}

// RunnerOption configures a PeriodicRunner.
type RunnerOption func(*PeriodicRunner)

// RunImmediately controls whether the first tick fires on Start instead
// of after the first interval. Default true.
func RunImmediately(v bool) RunnerOption {
	return func(r *PeriodicRunner) { r.runImmediately = v }
}

// WithCron schedules ticks by cron expression instead of a fixed
// interval. Standard five-field specs and descriptors like @hourly and
// @every are accepted; a bad spec surfaces from Start.
func WithCron(spec string) RunnerOption {
	return func(r *PeriodicRunner) {
		r.cronSpec = spec
		r.schedule, r.cronErr = cron.ParseStandard(spec)
	}
}

// WithTickTimeout bounds each tick with a deadline. Zero means no
// per-tick deadline.
func WithTickTimeout(d time.Duration) RunnerOption {
	return func(r *PeriodicRunner) {
		if d > 0 {
			r.tickTimeout = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *PeriodicRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEmitter publishes a runtime.maintenance.tick event after every
// tick, carrying the trigger, duration and outcome.
func WithEmitter(e core.EventEmitter) RunnerOption {
	return func(r *PeriodicRunner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// NewPeriodicRunner creates a runner invoking tick every interval. The
// interval is ignored when WithCron sets a schedule.
func NewPeriodicRunner(name string, tick func(context.Context) error, interval time.Duration, opts ...RunnerOption) *PeriodicRunner {
	r := &PeriodicRunner{
		name:           name,
		tick:           tick,
		interval:       interval,
		runImmediately: true,
		logger:         slog.Default(),
		tracer:         otel.Tracer("metis/runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the loop goroutine. Starting a running runner is a
// no-op. The loop detaches from the Start context; it stops on Stop.
func (r *PeriodicRunner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if r.tick == nil {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("runner %s has no tick function", r.name), nil)
	}
	if r.cronErr != nil {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("runner %s has invalid cron spec %q", r.name, r.cronSpec), r.cronErr)
	}
	if r.schedule == nil && r.interval <= 0 {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("runner %s interval must be positive", r.name), nil)
	}
	initRuntimeMetrics()

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.running = true
	r.cancel = cancel
	r.done = done

	r.logger.Info("runtime.runner.start",
		slog.String("runner", r.name),
		slog.Duration("interval", r.interval),
		slog.String("cron", r.cronSpec),
		slog.Bool("run_immediately", r.runImmediately),
	)
	go r.loop(loopCtx, done)
	return nil
}

// Stop signals the loop and waits for it to drain. Bounded by ctx;
// stopping a stopped runner is a no-op.
func (r *PeriodicRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.New(errors.CodeInternal,
			fmt.Sprintf("runner %s shutdown timed out", r.name), ctx.Err())
	}

	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	r.logger.Info("runtime.runner.stop", slog.String("runner", r.name))
	return nil
}

// TriggerOnce runs a single out-of-band tick and returns its outcome. It
// works whether or not the runner is started and never wakes or delays a
// scheduled tick.
func (r *PeriodicRunner) TriggerOnce(ctx context.Context) error {
	if r.tick == nil {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("runner %s has no tick function", r.name), nil)
	}
	return r.runTick(ctx, "manual")
}

// Name returns the runner's identifier.
func (r *PeriodicRunner) Name() string {
	return r.name
}

// IsRunning reports whether the loop goroutine is live.
func (r *PeriodicRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stats returns a snapshot of the runner's counters.
func (r *PeriodicRunner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunnerStats{
		TotalRuns:       r.totalRuns,
		SuccessfulRuns:  r.successfulRuns,
		FailedRuns:      r.failedRuns,
		LastStartedAt:   r.lastStartedAt,
		LastCompletedAt: r.lastCompletedAt,
		LastError:       r.lastError,
		IntervalSeconds: r.interval.Seconds(),
		RunImmediately:  r.runImmediately,
		Running:         r.running,
	}
}

func (r *PeriodicRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if r.runImmediately {
		_ = r.runTick(ctx, "startup")
	}

	if r.schedule != nil {
		r.cronLoop(ctx)
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.runTick(ctx, "interval")
		}
	}
}

func (r *PeriodicRunner) cronLoop(ctx context.Context) {
	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_ = r.runTick(ctx, "cron")
		}
	}
}

// runTick executes one tick under the optional deadline, recording stats
// and telemetry. Panics inside the tick become counted failures.
func (r *PeriodicRunner) runTick(ctx context.Context, trigger string) error {
	initRuntimeMetrics()
	start := time.Now()
	r.mu.Lock()
	r.lastStartedAt = start
	r.mu.Unlock()

	tickCtx := ctx
	var cancel context.CancelFunc
	if r.tickTimeout > 0 {
		tickCtx, cancel = context.WithTimeout(ctx, r.tickTimeout)
	}
	tickCtx, span := r.tracer.Start(tickCtx, "Runner.Tick",
		trace.WithAttributes(telemetry.RunnerAttributes(r.name, trigger)...),
	)

	err := r.safeTick(tickCtx)
	durationMS := time.Since(start).Milliseconds()
	sc := span.SpanContext()

	r.mu.Lock()
	r.totalRuns++
	if err != nil {
		r.failedRuns++
		r.lastError = err.Error()
	} else {
		r.successfulRuns++
		r.lastError = ""
	}
	r.lastCompletedAt = time.Now()
	r.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		r.logger.Warn("runtime.maintenance.tick.error",
			slog.String("runner", r.name),
			slog.String("trigger", trigger),
			slog.Int64("duration_ms", durationMS),
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
			slog.String("error", err.Error()),
		)
	} else {
		r.logger.Info("runtime.maintenance.tick",
			slog.String("runner", r.name),
			slog.String("trigger", trigger),
			slog.Int64("duration_ms", durationMS),
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	recordTickMetric(ctx, r.name, err == nil)

	if r.emitter != nil {
		payload := map[string]any{
			"runner":      r.name,
			"trigger":     trigger,
			"duration_ms": durationMS,
			"success":     err == nil,
		}
		if err != nil {
			payload["error"] = err.Error()
		}
		r.emitter.Emit(ctx, core.NewEvent(core.EventMaintenanceTick, r.name, sc.TraceID().String(), payload))
	}

	span.End()
	if cancel != nil {
		cancel()
	}
	return err
}

func (r *PeriodicRunner) safeTick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New(errors.CodeInternal,
				fmt.Sprintf("runner %s tick panicked: %v", r.name, rec), nil)
		}
	}()
	return r.tick(ctx)
}

var (
	runtimeMetricsOnce sync.Once
	tickCounter        metric.Int64Counter
)

func initRuntimeMetrics() {
	runtimeMetricsOnce.Do(func() {
		meter := otel.Meter("metis/runtime")
		tickCounter, _ = meter.Int64Counter("metis.runtime.ticks",
			metric.WithDescription("Maintenance runner ticks by result"))
	})
}

func recordTickMetric(ctx context.Context, runner string, success bool) {
	if tickCounter == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	tickCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.String("result", result),
	))
}
