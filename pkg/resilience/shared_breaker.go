// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// StateStore is the key-value surface backing a SharedBreaker. Implementations
// must tolerate concurrent writers; strict atomicity is not required.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// SharedBreaker runs the same transition table as CircuitBreaker against an
// external StateStore so breaker state is visible across processes.
//
// Cross-process visibility is best-effort: field updates are separate writes
// and increment-then-check races between processes are possible. Store I/O
// errors never block the call path; the breaker logs a warning and behaves
// as closed for that operation.
type SharedBreaker struct {
	config BreakerConfig
	store  StateStore
	logger *slog.Logger
}

// NewSharedBreaker creates a store-backed breaker. A nil logger falls back
// to slog.Default().
func NewSharedBreaker(store StateStore, config BreakerConfig, logger *slog.Logger) *SharedBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedBreaker{
		config: config.withDefaults(),
		store:  store,
		logger: logger,
	}
}

func (b *SharedBreaker) key(field string) string {
	return "breaker:" + b.config.Name + ":" + field
}

// BeforeCall implements Breaker.
func (b *SharedBreaker) BeforeCall(ctx context.Context) error {
	openedAt, ok := b.readTime(ctx, "opened_at")
	if ok {
		if time.Since(openedAt) < b.config.RecoveryTimeout {
			return openErr(b.config.Name, "circuit breaker open")
		}
		// Probe window; the failure counter stays so a failed trial reopens.
		b.write(ctx, "half_open", "1")
		b.write(ctx, "trials", "0")
		b.delete(ctx, b.key("opened_at"))
	}

	if b.readInt(ctx, "half_open") == 1 {
		trials := b.readInt(ctx, "trials")
		if trials >= b.config.HalfOpenTrials {
			return openErr(b.config.Name, "half-open trial budget exhausted")
		}
		b.write(ctx, "trials", strconv.Itoa(trials+1))
	}
	return nil
}

// RecordSuccess implements Breaker.
func (b *SharedBreaker) RecordSuccess(ctx context.Context) {
	b.delete(ctx,
		b.key("failures"),
		b.key("opened_at"),
		b.key("half_open"),
		b.key("trials"),
	)
}

// RecordFailure implements Breaker.
func (b *SharedBreaker) RecordFailure(ctx context.Context) {
	failures := b.readInt(ctx, "failures") + 1
	b.write(ctx, "failures", strconv.Itoa(failures))
	if failures >= b.config.FailureThreshold {
		b.write(ctx, "opened_at", time.Now().UTC().Format(time.RFC3339Nano))
		b.write(ctx, "half_open", "0")
		b.write(ctx, "trials", "0")
	}
}

// State implements Breaker.
func (b *SharedBreaker) State(ctx context.Context) CircuitBreakerState {
	openedAt, ok := b.readTime(ctx, "opened_at")
	switch {
	case ok && time.Since(openedAt) < b.config.RecoveryTimeout:
		return StateOpen
	case ok || b.readInt(ctx, "half_open") == 1:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Snapshot implements Breaker.
func (b *SharedBreaker) Snapshot(ctx context.Context) CircuitState {
	openedAt, _ := b.readTime(ctx, "opened_at")
	return CircuitState{
		ConsecutiveFailures: b.readInt(ctx, "failures"),
		OpenedAt:            openedAt,
		HalfOpen:            b.readInt(ctx, "half_open") == 1,
		HalfOpenTrialsUsed:  b.readInt(ctx, "trials"),
	}
}

func (b *SharedBreaker) readInt(ctx context.Context, field string) int {
	raw, ok, err := b.store.Get(ctx, b.key(field))
	if err != nil {
		b.warn("read", field, err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		b.warn("parse", field, err)
		return 0
	}
	return n
}

func (b *SharedBreaker) readTime(ctx context.Context, field string) (time.Time, bool) {
	raw, ok, err := b.store.Get(ctx, b.key(field))
	if err != nil {
		b.warn("read", field, err)
		return time.Time{}, false
	}
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		b.warn("parse", field, err)
		return time.Time{}, false
	}
	return t, true
}

func (b *SharedBreaker) write(ctx context.Context, field, value string) {
	if err := b.store.Set(ctx, b.key(field), value); err != nil {
		b.warn("write", field, err)
	}
}

func (b *SharedBreaker) delete(ctx context.Context, keys ...string) {
	if err := b.store.Delete(ctx, keys...); err != nil {
		b.warn("delete", "", err)
	}
}

func (b *SharedBreaker) warn(op, field string, err error) {
	b.logger.Warn("resilience.breaker.store_error",
		"breaker", b.config.Name,
		"op", op,
		"field", field,
		"error", err)
}
