// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills defines the unit-of-work contract executed by the engine:
// the Skill interface, its invocation envelope, the registry skills are
// dispatched from, and the resilient invoker that enforces each skill's SLA.
package skills

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/memory"
	"github.com/metis-ai/metis/pkg/resilience"
)

// Skill is a self-describing unit of work. Implementations must be safe for
// concurrent invocation and should honor ctx cancellation; the invoker does
// not forcibly stop a skill that ignores its context.
type Skill interface {
	Name() string
	Version() string
	Description() string
	SLA() SLA
	Invoke(ctx context.Context, in SkillInput, rc *RunContext) (SkillOutput, error)
}

// SchemaProvider is optionally implemented by skills that declare JSON
// Schemas for their payloads. When present, the invoker validates the input
// before the skill runs and the output before it is returned. A nil or
// empty schema skips that direction.
type SchemaProvider interface {
	InputSchema() json.RawMessage
	OutputSchema() json.RawMessage
}

// SLA declares a skill's invocation budget. Read-only at invocation time.
//
// A zero Timeout is not "no timeout": it rejects every call with
// InvocationTimeout, matching a budget of nothing. Use DefaultSLA as the
// starting point for ordinary skills.
type SLA struct {
	// Timeout is the wall-clock budget for one attempt.
	Timeout time.Duration

	// Retries is the total number of attempts (not additional ones).
	// Values below 1 mean a single attempt.
	Retries int

	// Breaker enables a circuit breaker for this skill when non-nil.
	Breaker *resilience.BreakerConfig

	// RetryBeforeBreaker keeps the retry loop running when a breaker is
	// attached, consulting the breaker before each attempt. The default
	// (false) fails fast after the first failure so repeated failures trip
	// the circuit instead of burning retries.
	RetryBeforeBreaker bool
}

// DefaultSLA returns the baseline budget: 30s per attempt, one retry
// attempt total, no breaker.
func DefaultSLA() SLA {
	return SLA{
		Timeout: 30 * time.Second,
		Retries: 1,
	}
}

// SkillInput is the invocation envelope handed to a skill. Passed by value;
// skills must not retain or mutate the payload map.
type SkillInput struct {
	Payload       map[string]any
	TraceID       string
	CorrelationID string
	Timestamp     time.Time
}

// NewSkillInput wraps a payload in an input envelope stamped with the
// current time.
func NewSkillInput(payload map[string]any) SkillInput {
	if payload == nil {
		payload = map[string]any{}
	}
	return SkillInput{
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// SkillOutput is the result envelope returned by a skill.
type SkillOutput struct {
	Payload   map[string]any
	Warnings  []string
	Metrics   map[string]float64
	Timestamp time.Time
}

// NewSkillOutput wraps a payload in an output envelope stamped with the
// current time.
func NewSkillOutput(payload map[string]any) SkillOutput {
	if payload == nil {
		payload = map[string]any{}
	}
	return SkillOutput{
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// AddWarning appends a non-fatal warning to the output.
func (o *SkillOutput) AddWarning(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// SetMetric records a named measurement on the output.
func (o *SkillOutput) SetMetric(name string, value float64) {
	if o.Metrics == nil {
		o.Metrics = make(map[string]float64)
	}
	o.Metrics[name] = value
}

// RunContext carries the per-run dependencies a skill may use: identifiers
// for correlation, the memory facade, structured logging, the breaker
// registry, and the event emitter. Skills may read memory and recall
// context but must not bypass the resilience layer to call other skills
// directly.
type RunContext struct {
	TraceID       string
	CorrelationID string
	Memory        *memory.Facade
	Logger        *slog.Logger
	Breakers      *resilience.Registry
	Emitter       core.EventEmitter
}

// Log returns the run logger, falling back to slog.Default. Safe on a nil
// RunContext.
func (rc *RunContext) Log() *slog.Logger {
	if rc == nil || rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}
