// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType identifies a semantic event emitted by the engine, the
// invocation layer, or the background runtime.
type EventType string

const (
	// Engine run lifecycle.
	EventRunStarted    EventType = "engine.run.started"
	EventRunCompleted  EventType = "engine.run.completed"
	EventStepCompleted EventType = "engine.step.completed"

	// Skill invocation lifecycle. These are contractual side effects of the
	// resilience layer, not optional logging: tests assert on them.
	EventSkillStarted     EventType = "skill.invoke.started"
	EventSkillSucceeded   EventType = "skill.invoke.succeeded"
	EventSkillTimeout     EventType = "skill.invoke.timeout"
	EventSkillException   EventType = "skill.invoke.exception"
	EventSkillCircuitOpen EventType = "skill.invoke.circuit_open"
	EventSkillFailed      EventType = "skill.invoke.failed"

	// Background runtime lifecycle.
	EventMaintenanceTick EventType = "runtime.maintenance.tick"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	Source    string
	TraceID   string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, source string, traceID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LoggingEmitter writes every event to a slog logger at debug level. It is
// the usual process-level emitter when no richer consumer is wired.
type LoggingEmitter struct {
	Logger *slog.Logger
}

// Emit implements EventEmitter.
func (l LoggingEmitter) Emit(ctx context.Context, event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelDebug, string(event.Type),
		slog.String("source", event.Source),
		slog.String("trace_id", event.TraceID),
	)
}

// CollectingEmitter records every emitted event. Safe for concurrent use;
// intended for tests and diagnostics.
type CollectingEmitter struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventEmitter.
func (c *CollectingEmitter) Emit(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the recorded events in emission order.
func (c *CollectingEmitter) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the recorded event types in emission order.
func (c *CollectingEmitter) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// Reset discards recorded events.
func (c *CollectingEmitter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
