// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"testing"
	"time"

	merrors "github.com/metis-ai/metis/pkg/errors"
)

func TestBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, Name: "test"})
	ctx := context.Background()

	if got := cb.State(ctx); got != StateClosed {
		t.Errorf("expected initial state closed, got %v", got)
	}
	if err := cb.BeforeCall(ctx); err != nil {
		t.Errorf("expected closed breaker to permit calls, got %v", err)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		Name:             "flaky",
	})
	ctx := context.Background()

	// Two consecutive failures reach the threshold.
	for i := 0; i < 2; i++ {
		if err := cb.BeforeCall(ctx); err != nil {
			t.Fatalf("call %d: expected breaker to permit, got %v", i, err)
		}
		cb.RecordFailure(ctx)
	}

	if got := cb.State(ctx); got != StateOpen {
		t.Fatalf("expected open after %d failures, got %v", 2, got)
	}

	// The third call is rejected without running the work.
	err := cb.BeforeCall(ctx)
	if err == nil {
		t.Fatalf("expected CircuitOpen rejection")
	}
	if !merrors.IsCode(err, merrors.CodeCircuitOpen) {
		t.Errorf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestBreakerBelowThresholdStaysClosed(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, Name: "test"})
	ctx := context.Background()

	cb.RecordFailure(ctx)
	cb.RecordFailure(ctx)

	if got := cb.State(ctx); got != StateClosed {
		t.Errorf("expected closed below threshold, got %v", got)
	}
	snap := cb.Snapshot(ctx)
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("expected 2 recorded failures, got %d", snap.ConsecutiveFailures)
	}
}

func TestBreakerRecoveryPermitsSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenTrials:   1,
		Name:             "recovering",
	})
	ctx := context.Background()

	cb.RecordFailure(ctx)
	cb.RecordFailure(ctx)
	if err := cb.BeforeCall(ctx); err == nil {
		t.Fatalf("expected rejection while open")
	}

	time.Sleep(30 * time.Millisecond)

	// Exactly one trial is permitted after the recovery timeout.
	if err := cb.BeforeCall(ctx); err != nil {
		t.Fatalf("expected half-open trial to be permitted, got %v", err)
	}
	if err := cb.BeforeCall(ctx); err == nil {
		t.Fatalf("expected second concurrent trial to be rejected")
	}

	// Trial success fully closes the breaker.
	cb.RecordSuccess(ctx)
	snap := cb.Snapshot(ctx)
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("expected failures reset to 0, got %d", snap.ConsecutiveFailures)
	}
	if !snap.OpenedAt.IsZero() {
		t.Errorf("expected OpenedAt cleared, got %v", snap.OpenedAt)
	}
	if got := cb.State(ctx); got != StateClosed {
		t.Errorf("expected closed after trial success, got %v", got)
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenTrials:   1,
		Name:             "relapsing",
	})
	ctx := context.Background()

	cb.RecordFailure(ctx)
	cb.RecordFailure(ctx)
	time.Sleep(30 * time.Millisecond)

	if err := cb.BeforeCall(ctx); err != nil {
		t.Fatalf("expected trial to be permitted, got %v", err)
	}
	cb.RecordFailure(ctx)

	// A single trial failure must reopen immediately because the failure
	// counter survives the half-open transition.
	if got := cb.State(ctx); got != StateOpen {
		t.Errorf("expected open after failed trial, got %v", got)
	}
	if err := cb.BeforeCall(ctx); err == nil {
		t.Errorf("expected rejection after failed trial")
	}
}

func TestBreakerManualOpenAndReset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, Name: "manual"})
	ctx := context.Background()

	cb.Open()
	if got := cb.State(ctx); got != StateOpen {
		t.Errorf("expected open after manual Open, got %v", got)
	}

	cb.Reset()
	if got := cb.State(ctx); got != StateClosed {
		t.Errorf("expected closed after Reset, got %v", got)
	}
	if err := cb.BeforeCall(ctx); err != nil {
		t.Errorf("expected call permitted after Reset, got %v", err)
	}
}

func TestRegistrySharesBreakerPerKey(t *testing.T) {
	reg := NewRegistry()
	cfg := BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}
	ctx := context.Background()

	a := reg.GetOrCreate("skill-a", cfg)
	b := reg.GetOrCreate("skill-a", cfg)
	if a != b {
		t.Fatalf("expected same breaker instance per key")
	}

	a.RecordFailure(ctx)
	a.RecordFailure(ctx)
	if err := b.BeforeCall(ctx); err == nil {
		t.Errorf("expected shared state: breaker open via second handle")
	}

	other := reg.GetOrCreate("skill-b", cfg)
	if err := other.BeforeCall(ctx); err != nil {
		t.Errorf("expected independent key to stay closed, got %v", err)
	}

	keys := reg.Keys()
	if len(keys) != 2 || keys[0] != "skill-a" || keys[1] != "skill-b" {
		t.Errorf("expected sorted keys [skill-a skill-b], got %v", keys)
	}
}

func TestRegistryStates(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	br := reg.GetOrCreate("s", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	br.RecordFailure(ctx)

	states := reg.States(ctx)
	if states["s"] != StateOpen {
		t.Errorf("expected open state exported, got %v", states["s"])
	}
}
