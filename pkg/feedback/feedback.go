// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package feedback records run outcomes for the learning and maintenance
// loops. The engine emits one Record per run, best-effort; sinks must not
// fail the run.
package feedback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Outcome values mirror the engine's terminal statuses.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Record is one run's worth of feedback.
type Record struct {
	Timestamp     time.Time
	Query         string
	SkillsInvoked []string
	Outcome       string
	Metrics       map[string]float64
	Metadata      map[string]any
}

// Sink persists feedback records.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// Filter limits feedback queries.
type Filter struct {
	Outcome string
	Since   time.Time
	Limit   int
}

// NoopSink discards all records.
type NoopSink struct{}

// Record implements Sink.
func (NoopSink) Record(_ context.Context, _ Record) error { return nil }

// SlogSink writes each record as a structured log line.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink logging through the given logger, or the
// default logger when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record implements Sink.
func (s *SlogSink) Record(ctx context.Context, rec Record) error {
	s.logger.InfoContext(ctx, "feedback.recorded",
		"query", rec.Query,
		"outcome", rec.Outcome,
		"skills", rec.SkillsInvoked,
		"metrics", rec.Metrics,
	)
	return nil
}

// encodeJSON marshals a payload into JSON, mapping nil to the JSON null.
func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// normalizeTime ensures stored timestamps are in UTC; zero times are
// stamped with the current instant.
func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
