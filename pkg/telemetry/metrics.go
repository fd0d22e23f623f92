// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/errors"
)

// Breaker state gauge values. Open sorts lowest so alerts can trigger
// on "state < 2".
const (
	BreakerStateOpen     int64 = 0
	BreakerStateHalfOpen int64 = 1
	BreakerStateClosed   int64 = 2
)

// Metrics tracks skill invocation outcomes, error rates, breaker state
// and memory store size for production monitoring.
type Metrics struct {
	// invocationCounter counts completed skill invocations by outcome.
	invocationCounter metric.Int64Counter

	// errorCounter tracks errors by code and component.
	errorCounter metric.Int64Counter

	// breakerStateGauge tracks circuit breaker state per skill
	// (0=open, 1=half-open, 2=closed).
	breakerStateGauge metric.Int64Gauge

	// memoryRecordsGauge tracks the record count per memory store.
	memoryRecordsGauge metric.Int64Gauge
}

// NewMetrics creates the metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("metis/telemetry")

	invocationCounter, err := meter.Int64Counter(
		"metis.skill.invocations",
		metric.WithDescription("Completed skill invocations by skill and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"metis.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	breakerStateGauge, err := meter.Int64Gauge(
		"metis.breaker.state",
		metric.WithDescription("Circuit breaker state per skill (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	memoryRecordsGauge, err := meter.Int64Gauge(
		"metis.memory.records",
		metric.WithDescription("Record count per memory store"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invocationCounter:  invocationCounter,
		errorCounter:       errorCounter,
		breakerStateGauge:  breakerStateGauge,
		memoryRecordsGauge: memoryRecordsGauge,
	}, nil
}

// RecordInvocation counts one completed skill invocation. Outcome is
// "succeeded" or "failed".
func (m *Metrics) RecordInvocation(ctx context.Context, skill, outcome string) {
	if m == nil {
		return
	}
	m.invocationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("skill", skill),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordError increments the error counter for the given error and
// component. Coded errors contribute their code and recoverability;
// anything else is counted as UNKNOWN.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	if me, ok := err.(*errors.MetisError); ok {
		m.recordErrorCode(ctx, string(me.Code), component, me.RecoverableString())
		return
	}
	m.recordErrorCode(ctx, "UNKNOWN", component, "unknown")
}

func (m *Metrics) recordErrorCode(ctx context.Context, code, component, recoverable string) {
	if m == nil {
		return
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}

// RecordBreakerState records the breaker state for a skill. State is the
// breaker's string form: "open", "half-open" or "closed".
func (m *Metrics) RecordBreakerState(ctx context.Context, skill, state string) {
	if m == nil {
		return
	}
	value := BreakerStateClosed
	switch state {
	case "open":
		value = BreakerStateOpen
	case "half-open":
		value = BreakerStateHalfOpen
	}
	m.breakerStateGauge.Record(ctx, value,
		metric.WithAttributes(attribute.String("skill", skill)),
	)
}

// RecordMemoryRecords records the current record count of a memory store.
func (m *Metrics) RecordMemoryRecords(ctx context.Context, store string, count int64) {
	if m == nil {
		return
	}
	m.memoryRecordsGauge.Record(ctx, count,
		metric.WithAttributes(attribute.String("store", store)),
	)
}

// EventBridge is an EventEmitter decorator that derives metrics from the
// skill lifecycle events flowing through it, then forwards each event to
// the wrapped emitter. Wrapping the process emitter with a bridge gives
// invocation and breaker metrics without touching the invocation path.
type EventBridge struct {
	metrics *Metrics
	next    core.EventEmitter
}

// NewEventBridge wraps next with metric recording. A nil next forwards
// nowhere but still records.
func NewEventBridge(m *Metrics, next core.EventEmitter) *EventBridge {
	return &EventBridge{metrics: m, next: next}
}

// Emit implements core.EventEmitter.
func (b *EventBridge) Emit(ctx context.Context, event core.Event) {
	b.record(ctx, event)
	if b.next != nil {
		b.next.Emit(ctx, event)
	}
}

func (b *EventBridge) record(ctx context.Context, event core.Event) {
	skill := skillFromEvent(event)
	switch event.Type {
	case core.EventSkillSucceeded:
		b.metrics.RecordInvocation(ctx, skill, "succeeded")
	case core.EventSkillFailed:
		b.metrics.RecordInvocation(ctx, skill, "failed")
	case core.EventSkillTimeout:
		b.metrics.recordErrorCode(ctx, string(errors.CodeInvocationTimeout), skill, "true")
	case core.EventSkillException:
		b.metrics.recordErrorCode(ctx, string(errors.CodeSkillExecutionFailure), skill, "true")
	case core.EventSkillCircuitOpen:
		b.metrics.recordErrorCode(ctx, string(errors.CodeCircuitOpen), skill, "true")
		b.metrics.RecordBreakerState(ctx, skill, "open")
	}
}

func skillFromEvent(event core.Event) string {
	if s, ok := event.Payload["skill"].(string); ok && s != "" {
		return s
	}
	return event.Source
}
