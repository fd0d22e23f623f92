// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Metis spans. LLM attributes follow the
// standard gen_ai conventions; everything else is metis-prefixed.
const (
	// Engine run attributes.
	AttrEngineQuery    = "metis.engine.query"
	AttrEngineMaxSteps = "metis.engine.max_steps"
	AttrEnginePlanUsed = "metis.engine.plan_used"

	// Step attributes.
	AttrStepID    = "metis.step.id"
	AttrStepSkill = "metis.step.skill"

	// Maintenance runner attributes.
	AttrRunnerName    = "metis.runner.name"
	AttrRunnerTrigger = "metis.runner.trigger"

	// LLM attributes.
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// EngineRunAttributes returns the attributes for an engine run span. The
// query is truncated so span payloads stay bounded.
func EngineRunAttributes(query string, maxSteps int, planUsed bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrEngineMaxSteps, maxSteps),
		attribute.Bool(AttrEnginePlanUsed, planUsed),
	}
	if query != "" {
		attrs = append(attrs, attribute.String(AttrEngineQuery, truncate(query, 200)))
	}
	return attrs
}

// StepAttributes returns the attributes for a single step span.
func StepAttributes(stepID, skill string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStepID, stepID),
		attribute.String(AttrStepSkill, skill),
	}
}

// RunnerAttributes returns the attributes for a maintenance tick span.
func RunnerAttributes(name, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunnerName, name),
		attribute.String(AttrRunnerTrigger, trigger),
	}
}

// LLMAttributes returns the request attributes for an LLM call span.
func LLMAttributes(model, provider string, messageCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, messageCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes for a completed LLM
// call. Zero counts are omitted because some providers report no usage.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
