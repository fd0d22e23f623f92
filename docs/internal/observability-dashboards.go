//go:build ignore

// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0
//
// Metis Observability Dashboards
// This file documents dashboard templates for an OTLP backend (Grafana,
// SigNoz, or the OTEL UI). Metric names match pkg/telemetry/metrics.go,
// pkg/agent/metrics.go and pkg/runtime/runner.go.
//
// DASHBOARD: Engine Runs & Outcomes
//   Shows run throughput, step latency and boundary blocks.
//
//   Queries:
//   - metis.engine.runs{status} (rate 5m)
//     Metric: Completed runs by status (success, partial, failed)
//     Display: Stacked area chart
//     Alert Threshold: failed/total > 20% over 5m
//
//   - metis.engine.step.duration{skill} (p50/p95, 5m)
//     Metric: Step execution time in ms per skill
//     Display: Heatmap or multi-line percentile chart
//     Insight: A p95 near the skill's SLA budget means timeouts are close
//
//   - metis.engine.blocked{rule} (rate 5m)
//     Metric: Tasks rejected at the boundary by screening rule
//     Display: Bar chart by rule (injection, denylist, secrets)
//     Insight: A spike usually means a client is probing, not a regression
//
// DASHBOARD: Skill Health
//   Per-skill invocation outcomes and breaker posture.
//
//   Queries:
//   - metis.skill.invocations{skill, outcome} (rate 5m)
//     Metric: Completed invocations, outcome succeeded|failed
//     Display: Line chart per skill with outcome legend
//
//   - metis.breaker.state{skill}
//     Metric: Circuit breaker state (0=open, 1=half-open, 2=closed)
//     Display: Status panels per skill
//     Color Map: Red (0), Yellow (1), Green (2)
//     Meaning:
//       OPEN (0): Calls rejected, fallback skill active if configured
//       HALF_OPEN (1): Trial calls probing recovery
//       CLOSED (2): Normal operation
//
//   - metis.errors.total{error.code, component, recoverable} (rate 5m)
//     Metric: Error rate by taxonomy code
//     Display: Line chart with legend (INVOCATION_TIMEOUT, CIRCUIT_OPEN,
//     SKILL_EXECUTION_FAILURE, SCHEMA_VALIDATION_FAILURE, ...)
//     Alert Threshold: > 10/min for recoverable="false"
//
// DASHBOARD: Memory & Maintenance
//   Store growth against the background jobs that keep it bounded.
//
//   Queries:
//   - metis.memory.records{store}
//     Metric: Record count per memory store
//     Display: Line chart; long_term should sawtooth as compaction runs
//
//   - metis.runtime.ticks{runner, result} (rate 1h)
//     Metric: Maintenance runner ticks, result success|error
//     Display: Stat panels per runner (compaction, prune, feedback)
//     Insight: A flat-zero runner means the scheduler stopped, not that
//     there was nothing to do
//
// ALERT RULES (Prometheus/AlertManager format):
//
// Alert 1: High Run Failure Rate
//   Name: MetisHighRunFailureRate
//   Condition: rate(metis.engine.runs{status="failed"}[5m])
//              / rate(metis.engine.runs[5m]) > 0.2
//   Duration: 5m
//   Severity: critical
//   Message: "Metis run failure rate {{ $value }}, threshold 20%"
//   Action: Check provider availability and recent skill deploys
//
// Alert 2: Circuit Breaker Open
//   Name: MetisCircuitBreakerOpen
//   Condition: metis.breaker.state < 2
//   Duration: 2m
//   Severity: warning (critical when the skill has no fallback)
//   Message: "Breaker not closed on {{ $labels.skill }}"
//   Action: Investigate the skill's dependency; trial calls will probe
//           recovery automatically
//
// Alert 3: Maintenance Runner Failing
//   Name: MetisMaintenanceTickErrors
//   Condition: rate(metis.runtime.ticks{result="error"}[1h]) > 0
//   Duration: 1h
//   Severity: warning
//   Message: "Runner {{ $labels.runner }} ticks failing"
//   Action: Check store health; unbounded growth follows if compaction
//           or prune stays broken
//
// Alert 4: Non-Recoverable Errors
//   Name: MetisNonRecoverableErrors
//   Condition: rate(metis.errors.total{recoverable="false"}[5m]) > 1
//   Duration: 2m
//   Severity: critical
//   Message: "{{ $value }} non-recoverable errors/sec"
//   Action: These do not retry; check for bugs or bad configuration
//
// Alert 5: Boundary Block Spike
//   Name: MetisBlockedTaskSpike
//   Condition: rate(metis.engine.blocked[5m]) > 10 * rate(metis.engine.blocked[1h] offset 1h)
//   Duration: 10m
//   Severity: info
//   Message: "Blocked tasks spiking on rule {{ $labels.rule }}"
//   Action: Review blocked-task logs (rule + reason are logged at warn)
//
// PROMQL EXAMPLES:
//
// 1. Run Success Percentage
//    PromQL: rate(metis.engine.runs{status="success"}[5m])
//            / rate(metis.engine.runs[5m]) * 100
//    Display: Single stat
//
// 2. Top Skills by Failure Count
//    PromQL: topk(5, sum(rate(metis.skill.invocations{outcome="failed"}[5m])) by (skill))
//    Display: Bar chart
//
// 3. Step Latency p95 by Skill
//    PromQL: histogram_quantile(0.95, rate(metis.engine.step.duration_bucket[5m]))
//    Display: Multi-line chart, one series per skill
//
// 4. Breaker Flap Frequency
//    PromQL: changes(metis.breaker.state[1h]) by (skill)
//    Display: Line chart; frequent open/close cycles mean the recovery
//    timeout is shorter than the dependency's actual recovery time
//
// 5. Timeouts vs Breaker Opens
//    PromQL: rate(metis.errors.total{error.code="INVOCATION_TIMEOUT"}[5m])
//            vs metis.breaker.state
//    Display: Dual axis line chart
//    Insight: Timeouts count as breaker failures, so sustained timeouts
//    should be followed by opens; opens without timeouts point at
//    execution failures instead
//
// INTEGRATION PATTERNS:
//
// 1. Event-Driven Metrics:
//    - Wrap the process emitter with telemetry.NewEventBridge
//    - Skill lifecycle events become invocation counts and breaker
//      state transitions without touching the invocation path
//
// 2. SLA Tuning:
//    - Compare metis.engine.step.duration p95 against each skill's SLA
//      timeout; a budget more than 10x the p95 hides slow regressions,
//      a budget near the p95 causes spurious INVOCATION_TIMEOUT errors
//
// 3. Shared Breaker Deployments:
//    - With the SQLite-backed registry, metis.breaker.state converges
//      across processes only after each process observes a call; panels
//      should group by skill, not by instance
//
// 4. Retention Sizing:
//    - Watch metis.memory.records{store="long_term"} against the
//      compaction runner's tick rate to size maintenance intervals
//
package main

// This file is documentation only and is not compiled.
// See pkg/telemetry and DESIGN.md for the implementation.
