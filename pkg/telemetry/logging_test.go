// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	if err != nil {
		t.Fatalf("bad trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	if err != nil {
		t.Fatalf("bad span id: %v", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestConfigureSlogJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	logger.Info("hello", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "hello" || record["key"] != "value" {
		t.Errorf("record = %v", record)
	}
}

func TestConfigureSlogTextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "")

	logger.Info("plain line")

	if out := buf.String(); !strings.Contains(out, "msg=\"plain line\"") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigureSlogLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record passed a warn-level logger")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record was filtered")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"warn":     slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		" error ":  slog.LevelError,
		"":         slog.LevelInfo,
		"verbose!": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestTraceHandlerInjectsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))
	logger.InfoContext(ctx, "traced line")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["trace_id"] != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("trace_id = %v", record["trace_id"])
	}
	if record["span_id"] != "0102030405060708" {
		t.Errorf("span_id = %v", record["span_id"])
	}
}

func TestTraceHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "text")

	logger.InfoContext(context.Background(), "untraced line")

	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Errorf("trace_id injected without a span: %q", out)
	}
}

// An explicit trace_id attribute wins over injection.
func TestTraceHandlerNoDuplicateIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "text")

	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))
	logger.InfoContext(ctx, "tagged", "trace_id", "manual-override")

	out := buf.String()
	if got := strings.Count(out, "trace_id="); got != 1 {
		t.Errorf("trace_id appears %d times: %q", got, out)
	}
	if !strings.Contains(out, "manual-override") {
		t.Errorf("explicit trace_id lost: %q", out)
	}
}

func TestSpanIDsFromContext(t *testing.T) {
	if _, _, ok := spanIDsFromContext(context.Background()); ok {
		t.Error("ok = true for a context without a span")
	}

	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))
	traceID, spanID, ok := spanIDsFromContext(ctx)
	if !ok || traceID == "" || spanID == "" {
		t.Errorf("spanIDsFromContext = (%q, %q, %v)", traceID, spanID, ok)
	}
}
