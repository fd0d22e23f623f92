// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	agentMetricsOnce sync.Once
	runCounter       metric.Int64Counter
	stepDuration     metric.Float64Histogram
	blockedCounter   metric.Int64Counter
)

func initAgentMetrics() {
	agentMetricsOnce.Do(func() {
		meter := otel.Meter("metis/agent")
		runCounter, _ = meter.Int64Counter(
			"metis.engine.runs",
			metric.WithDescription("Completed engine runs by status"),
		)
		stepDuration, _ = meter.Float64Histogram(
			"metis.engine.step.duration",
			metric.WithDescription("Step execution time"),
			metric.WithUnit("ms"),
		)
		blockedCounter, _ = meter.Int64Counter(
			"metis.engine.blocked",
			metric.WithDescription("Tasks blocked at the boundary by rule"),
		)
	})
}

func recordRunMetric(ctx context.Context, status Status) {
	if runCounter == nil {
		return
	}
	runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func recordStepMetric(ctx context.Context, skill string, elapsedMS int64) {
	if stepDuration == nil {
		return
	}
	stepDuration.Record(ctx, float64(elapsedMS), metric.WithAttributes(attribute.String("skill", skill)))
}

func recordBlockedMetric(ctx context.Context, rule string) {
	if blockedCounter == nil {
		return
	}
	blockedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}
