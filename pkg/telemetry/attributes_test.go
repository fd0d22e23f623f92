// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestEngineRunAttributes(t *testing.T) {
	attrs := EngineRunAttributes("what is the capital of France", 6, true)

	assertAttributes(t, attrs, map[string]any{
		AttrEngineQuery:    "what is the capital of France",
		AttrEngineMaxSteps: 6,
		AttrEnginePlanUsed: true,
	})
}

func TestEngineRunAttributesEmptyQuery(t *testing.T) {
	attrs := EngineRunAttributes("", 3, false)

	for _, attr := range attrs {
		if string(attr.Key) == AttrEngineQuery {
			t.Error("empty query produced a query attribute")
		}
	}
	assertAttributes(t, attrs, map[string]any{
		AttrEngineMaxSteps: 3,
		AttrEnginePlanUsed: false,
	})
}

func TestEngineRunAttributesTruncatesQuery(t *testing.T) {
	long := strings.Repeat("q", 300)
	attrs := EngineRunAttributes(long, 6, false)

	for _, attr := range attrs {
		if string(attr.Key) == AttrEngineQuery {
			if got := len(attr.Value.AsString()); got > 203 {
				t.Errorf("query not truncated: len=%d", got)
			}
		}
	}
}

func TestStepAttributes(t *testing.T) {
	attrs := StepAttributes("step-1", "memory_search")

	assertAttributes(t, attrs, map[string]any{
		AttrStepID:    "step-1",
		AttrStepSkill: "memory_search",
	})
}

func TestRunnerAttributes(t *testing.T) {
	attrs := RunnerAttributes("compaction", "cron")

	assertAttributes(t, attrs, map[string]any{
		AttrRunnerName:    "compaction",
		AttrRunnerTrigger: "cron",
	})
}

func TestLLMAttributes(t *testing.T) {
	attrs := LLMAttributes("llama3.2", "ollama", 4)

	assertAttributes(t, attrs, map[string]any{
		AttrLLMModel:    "llama3.2",
		AttrLLMProvider: "ollama",
		AttrLLMMessages: 4,
	})
}

func TestLLMUsageAttributes(t *testing.T) {
	attrs := LLMUsageAttributes(100, 50, 1500.0)

	assertAttributes(t, attrs, map[string]any{
		AttrLLMTokensInput:  100,
		AttrLLMTokensOutput: 50,
		AttrLLMTokensTotal:  150,
		AttrLLMDurationMs:   1500.0,
	})
}

// Providers that report no usage produce no usage attributes.
func TestLLMUsageAttributesOmitsZeroes(t *testing.T) {
	if attrs := LLMUsageAttributes(0, 0, 0); len(attrs) != 0 {
		t.Errorf("attrs = %v, want none", attrs)
	}
}

// assertAttributes checks that expected key-value pairs exist in attrs.
func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
