// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/resilience"
)

// Invoker runs skills under their SLA: per-attempt timeout, bounded
// retries, circuit breaking, schema validation, and lifecycle events. One
// Invoker serves many concurrent invocations.
type Invoker struct {
	emitter core.EventEmitter
	logger  *slog.Logger
	sem     *semaphore.Weighted
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithEmitter sets the fallback event emitter used when the RunContext
// carries none.
func WithEmitter(e core.EventEmitter) InvokerOption {
	return func(iv *Invoker) {
		if e != nil {
			iv.emitter = e
		}
	}
}

// WithLogger sets the fallback logger used when the RunContext carries
// none.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(iv *Invoker) {
		if l != nil {
			iv.logger = l
		}
	}
}

// WithMaxConcurrent bounds the number of concurrently executing skill
// attempts. Abandoned attempts (timed out but still running) keep holding
// their slot until the skill returns, which is what puts a ceiling on
// non-cooperative work.
func WithMaxConcurrent(n int64) InvokerOption {
	return func(iv *Invoker) {
		if n > 0 {
			iv.sem = semaphore.NewWeighted(n)
		}
	}
}

// NewInvoker creates an invoker. With no options it is unbounded and emits
// only through emitters carried on the RunContext.
func NewInvoker(opts ...InvokerOption) *Invoker {
	iv := &Invoker{}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

var defaultInvoker = NewInvoker()

// SafeInvoke runs a skill under its SLA using a default, unbounded invoker.
//
// Timeouts are cooperative: the attempt's context is cancelled on timeout
// so well-behaved skills stop promptly, but a skill that ignores its
// context may outlive its budget; its result is discarded. A panicking
// skill never crosses the invocation boundary; the panic is converted into
// a SkillExecutionFailure error.
func SafeInvoke(ctx context.Context, s Skill, in SkillInput, rc *RunContext) (SkillOutput, error) {
	return defaultInvoker.Invoke(ctx, s, in, rc)
}

// Invoke runs one skill invocation under its SLA. See SafeInvoke for the
// timeout and panic semantics.
func (iv *Invoker) Invoke(ctx context.Context, s Skill, in SkillInput, rc *RunContext) (SkillOutput, error) {
	if s == nil {
		return SkillOutput{}, errors.New(errors.CodeInvalidInput, "cannot invoke a nil skill", nil)
	}
	name := s.Name()
	sla := s.SLA()
	logger := iv.runLogger(rc)

	if rc != nil {
		if in.TraceID == "" {
			in.TraceID = rc.TraceID
		}
		if in.CorrelationID == "" {
			in.CorrelationID = rc.CorrelationID
		}
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	// Input schema rejections happen before any attempt; the skill never
	// starts, so no lifecycle events fire.
	if err := ValidateInputPayload(s, in.Payload); err != nil {
		return SkillOutput{}, err
	}

	attempts := sla.Retries
	if attempts < 1 {
		attempts = 1
	}
	breaker := resolveBreaker(rc, name, sla)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		iv.emit(ctx, rc, core.EventSkillStarted, name, map[string]any{
			"skill":   name,
			"attempt": attempt,
		})

		if breaker != nil {
			if err := breaker.BeforeCall(ctx); err != nil {
				iv.emit(ctx, rc, core.EventSkillCircuitOpen, name, map[string]any{
					"skill":   name,
					"attempt": attempt,
				})
				iv.emit(ctx, rc, core.EventSkillFailed, name, map[string]any{
					"skill": name,
					"error": err.Error(),
				})
				logger.Warn("skill invocation rejected by circuit breaker",
					"skill", name, "attempt", attempt)
				return SkillOutput{}, err
			}
		}

		start := time.Now()
		out, err := iv.runAttempt(ctx, s, in, rc, sla.Timeout)
		elapsedMS := time.Since(start).Milliseconds()

		if err == nil {
			err = ValidateOutputPayload(s, out.Payload)
		}

		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess(ctx)
			}
			iv.emit(ctx, rc, core.EventSkillSucceeded, name, map[string]any{
				"skill":      name,
				"attempt":    attempt,
				"elapsed_ms": elapsedMS,
			})
			return out, nil
		}

		lastErr = err
		if errors.IsCode(err, errors.CodeInvocationTimeout) {
			iv.emit(ctx, rc, core.EventSkillTimeout, name, map[string]any{
				"skill":      name,
				"attempt":    attempt,
				"elapsed_ms": elapsedMS,
			})
		} else {
			iv.emit(ctx, rc, core.EventSkillException, name, map[string]any{
				"skill":   name,
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		logger.Warn("skill attempt failed",
			"skill", name, "attempt", attempt, "elapsed_ms", elapsedMS, "error", err)

		if breaker != nil {
			breaker.RecordFailure(ctx)
			if !sla.RetryBeforeBreaker {
				// Fail fast: with a breaker attached, repeated failures trip
				// the circuit instead of burning the retry budget.
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	iv.emit(ctx, rc, core.EventSkillFailed, name, map[string]any{
		"skill": name,
		"error": lastErr.Error(),
	})
	return SkillOutput{}, lastErr
}

func (iv *Invoker) runAttempt(ctx context.Context, s Skill, in SkillInput, rc *RunContext, timeout time.Duration) (SkillOutput, error) {
	if iv.sem != nil {
		if err := iv.sem.Acquire(ctx, 1); err != nil {
			return SkillOutput{}, errors.New(errors.CodeUnavailable, "no invocation slot available", err)
		}
	}
	name := s.Name()

	return resilience.WithTimeout(ctx, timeout, func(invCtx context.Context) (out SkillOutput, err error) {
		if iv.sem != nil {
			defer iv.sem.Release(1)
		}
		defer func() {
			if r := recover(); r != nil {
				err = errors.New(errors.CodeSkillExecutionFailure,
					fmt.Sprintf("skill %s panicked: %v", name, r), nil)
			}
		}()

		out, err = s.Invoke(invCtx, in, rc)
		if err != nil {
			return out, errors.New(errors.CodeSkillExecutionFailure,
				fmt.Sprintf("skill %s failed", name), err).WithRecoverable(true)
		}
		return out, nil
	})
}

// resolveBreaker picks the breaker for this invocation: the shared one from
// the run's registry when available, else a per-call breaker. No breaker
// config means no breaker at all.
func resolveBreaker(rc *RunContext, name string, sla SLA) resilience.Breaker {
	if sla.Breaker == nil {
		return nil
	}
	if rc != nil && rc.Breakers != nil {
		return rc.Breakers.GetOrCreate(name, *sla.Breaker)
	}
	cfg := *sla.Breaker
	if cfg.Name == "" {
		cfg.Name = name
	}
	return resilience.NewCircuitBreaker(cfg)
}

func (iv *Invoker) emit(ctx context.Context, rc *RunContext, t core.EventType, source string, payload map[string]any) {
	emitter := iv.emitter
	if rc != nil && rc.Emitter != nil {
		emitter = rc.Emitter
	}
	if emitter == nil {
		return
	}
	traceID := ""
	if rc != nil {
		traceID = rc.TraceID
	}
	emitter.Emit(ctx, core.NewEvent(t, source, traceID, payload))
}

func (iv *Invoker) runLogger(rc *RunContext) *slog.Logger {
	if rc != nil && rc.Logger != nil {
		return rc.Logger
	}
	if iv.logger != nil {
		return iv.logger
	}
	return slog.Default()
}
