// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides circuit breaker, retry, and timeout patterns
// for bounding and protecting unit-of-work invocations.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/metis-ai/metis/pkg/errors"
)

// CircuitBreakerState labels the observable state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means calls flow through normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means calls are rejected without attempting the work.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means a bounded number of trial calls probe recovery.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before permitting
	// half-open trial calls.
	RecoveryTimeout time.Duration

	// HalfOpenTrials is the number of trial calls permitted while half-open.
	HalfOpenTrials int

	// Name is the circuit breaker identifier for logging/metrics.
	Name string
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenTrials:   1,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenTrials < 1 {
		c.HalfOpenTrials = 1
	}
	if c.Name == "" {
		c.Name = "circuit_breaker"
	}
	return c
}

// CircuitState is a point-in-time snapshot of breaker bookkeeping.
type CircuitState struct {
	ConsecutiveFailures int
	OpenedAt            time.Time // zero while the circuit is not open
	HalfOpen            bool
	HalfOpenTrialsUsed  int
}

// Breaker is the transition surface shared by the local and the
// store-backed breaker. Callers consult BeforeCall, run the work, then
// record the outcome; the breaker never wraps the call itself.
type Breaker interface {
	// BeforeCall returns errors.CodeCircuitOpen when the call must be
	// rejected without attempting the work.
	BeforeCall(ctx context.Context) error

	// RecordSuccess resets the breaker to fully closed.
	RecordSuccess(ctx context.Context)

	// RecordFailure counts a failure and opens the circuit at threshold.
	RecordFailure(ctx context.Context)

	// State labels the current state for observability.
	State(ctx context.Context) CircuitBreakerState

	// Snapshot returns the current bookkeeping values.
	Snapshot(ctx context.Context) CircuitState
}

// CircuitBreaker is the in-process Breaker implementation. Safe for
// concurrent use across engine instances sharing a skill key.
type CircuitBreaker struct {
	config BreakerConfig

	mu         sync.RWMutex
	failures   int
	openedAt   time.Time
	halfOpen   bool
	trialsUsed int
}

// NewCircuitBreaker creates a circuit breaker with the given config.
// Zero-valued config fields fall back to the defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config.withDefaults()}
}

// BeforeCall implements Breaker.
func (cb *CircuitBreaker) BeforeCall(_ context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.openedAt.IsZero() {
		if time.Since(cb.openedAt) < cb.config.RecoveryTimeout {
			return openErr(cb.config.Name, "circuit breaker open")
		}
		// Enter the probe window. The failure counter is deliberately left
		// intact so a failed trial reopens the circuit immediately.
		cb.halfOpen = true
		cb.trialsUsed = 0
		cb.openedAt = time.Time{}
	}

	if cb.halfOpen {
		if cb.trialsUsed >= cb.config.HalfOpenTrials {
			return openErr(cb.config.Name, "half-open trial budget exhausted")
		}
		cb.trialsUsed++
	}
	return nil
}

// RecordSuccess implements Breaker.
func (cb *CircuitBreaker) RecordSuccess(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.halfOpen = false
	cb.trialsUsed = 0
}

// RecordFailure implements Breaker.
func (cb *CircuitBreaker) RecordFailure(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.config.FailureThreshold {
		cb.openedAt = time.Now()
		cb.halfOpen = false
		cb.trialsUsed = 0
	}
}

// State implements Breaker.
func (cb *CircuitBreaker) State(_ context.Context) CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch {
	case !cb.openedAt.IsZero() && time.Since(cb.openedAt) < cb.config.RecoveryTimeout:
		return StateOpen
	case !cb.openedAt.IsZero() || cb.halfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Snapshot implements Breaker.
func (cb *CircuitBreaker) Snapshot(_ context.Context) CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitState{
		ConsecutiveFailures: cb.failures,
		OpenedAt:            cb.openedAt,
		HalfOpen:            cb.halfOpen,
		HalfOpenTrialsUsed:  cb.trialsUsed,
	}
}

// Reset manually restores the breaker to fully closed.
func (cb *CircuitBreaker) Reset() {
	cb.RecordSuccess(context.Background())
}

// Open manually forces the circuit open. The failure counter is pinned at
// the threshold so a later failed trial reopens the circuit.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.failures < cb.config.FailureThreshold {
		cb.failures = cb.config.FailureThreshold
	}
	cb.openedAt = time.Now()
	cb.halfOpen = false
	cb.trialsUsed = 0
}

func openErr(name, msg string) error {
	return errors.New(errors.CodeCircuitOpen, msg, nil).
		WithContext("breaker", name).
		WithRecoverable(true)
}
