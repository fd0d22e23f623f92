// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the plan execution engine: a bounded step loop
// that resolves each step from an explicit plan or the router, invokes
// skills through the resilience layer, extracts candidate answers, and
// keeps memory and feedback current along the way. An optional screen
// inspects the task before the loop and scrubs the final answer after it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/feedback"
	"github.com/metis-ai/metis/pkg/memory"
	"github.com/metis-ai/metis/pkg/planner"
	"github.com/metis-ai/metis/pkg/resilience"
	"github.com/metis-ai/metis/pkg/screening"
	"github.com/metis-ai/metis/pkg/skills"
	"github.com/metis-ai/metis/pkg/telemetry"
)

const (
	// DefaultMaxSteps bounds the step loop when no override is given.
	DefaultMaxSteps = 6
	// DefaultFallbackSkill handles steps whose skill cannot be resolved.
	DefaultFallbackSkill = skills.QuestionAnsweringSkillName
	// NoMemoryAnswer ends a run whose final memory search came up empty.
	NoMemoryAnswer = "I could not find anything in memory that answers that."

	eventSource = "agent"
	recallTopK  = 3
)

// Agent drives tasks to completion. All collaborators are injected; the
// zero-option configuration degrades to fallback-only operation with no
// memory, planning, or feedback.
type Agent struct {
	registry *skills.Registry
	router   planner.Router
	planner  planner.Planner
	memory   *memory.Facade
	breakers *resilience.Registry
	feedback feedback.Sink
	emitter  core.EventEmitter
	logger   *slog.Logger
	invoker  *skills.Invoker
	tracer   trace.Tracer
	screen   *screening.Screen
	maxSteps int
	fallback string
}

// Option configures an Agent.
type Option func(*Agent)

// WithRouter sets the decision source for steps outside a plan.
func WithRouter(r planner.Router) Option {
	return func(a *Agent) { a.router = r }
}

// WithPlanner sets the planner consulted once per Run call.
func WithPlanner(p planner.Planner) Option {
	return func(a *Agent) { a.planner = p }
}

// WithMemory enables the tiered memory facade.
func WithMemory(f *memory.Facade) Option {
	return func(a *Agent) { a.memory = f }
}

// WithBreakers shares a circuit-breaker registry across runs.
func WithBreakers(r *resilience.Registry) Option {
	return func(a *Agent) { a.breakers = r }
}

// WithFeedback sets the sink receiving one record per run.
func WithFeedback(s feedback.Sink) Option {
	return func(a *Agent) {
		if s != nil {
			a.feedback = s
		}
	}
}

// WithMaxSteps overrides the step budget.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithFallbackSkill overrides the skill tried when dispatch fails.
func WithFallbackSkill(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.fallback = name
		}
	}
}

// WithScreen screens tasks before the loop and scrubs final answers.
// A nil screen disables both.
func WithScreen(s *screening.Screen) Option {
	return func(a *Agent) { a.screen = s }
}

// WithEvents sets the lifecycle event emitter.
func WithEvents(e core.EventEmitter) Option {
	return func(a *Agent) {
		if e != nil {
			a.emitter = e
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an Agent around a skill registry.
func New(reg *skills.Registry, opts ...Option) *Agent {
	if reg == nil {
		reg = skills.NewRegistry()
	}
	a := &Agent{
		registry: reg,
		feedback: feedback.NoopSink{},
		emitter:  core.NoopEventEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("metis/agent"),
		maxSteps: DefaultMaxSteps,
		fallback: DefaultFallbackSkill,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.invoker = skills.NewInvoker(skills.WithEmitter(a.emitter), skills.WithLogger(a.logger))
	return a
}

// Run executes a task. When a planner is configured it is consulted once
// before the loop; a planner failure is logged and the run degrades to
// router-only operation. Ordinary skill failures never surface as errors;
// the returned result carries them as step results.
func (a *Agent) Run(ctx context.Context, task string) *AgentResult {
	var plan *planner.AgentPlan
	if a.planner != nil {
		p, err := a.planner.Plan(ctx, task, nil)
		if err != nil {
			a.logger.Warn("planner failed, continuing without a plan", "error", err)
		} else {
			plan = p
		}
	}
	return a.run(ctx, task, plan)
}

// RunWithPlan executes a task against an explicit plan, bypassing any
// configured planner. An invalid plan is discarded with a warning and the
// run proceeds router-only.
func (a *Agent) RunWithPlan(ctx context.Context, task string, plan *planner.AgentPlan) *AgentResult {
	if plan != nil {
		if err := plan.Validate(); err != nil {
			a.logger.Warn("discarding invalid plan", "error", err)
			plan = nil
		}
	}
	return a.run(ctx, task, plan)
}

func (a *Agent) run(ctx context.Context, task string, plan *planner.AgentPlan) (res *AgentResult) {
	start := time.Now()
	ctx, traceID := core.EnsureTraceID(ctx)
	corrID, _ := core.CorrelationID(ctx)
	initAgentMetrics()

	ctx, span := a.tracer.Start(ctx, "Agent.Run",
		trace.WithAttributes(telemetry.EngineRunAttributes(task, a.maxSteps, plan != nil)...),
	)
	defer span.End()

	res = &AgentResult{
		Status:   StatusPartial,
		Metadata: make(map[string]any),
	}
	res.Metadata["plan_used"] = plan != nil
	if plan != nil {
		res.PlanID = plan.ID
	}

	var invokedNames []string

	// The engine never lets a panic escape: anything unexpected becomes a
	// failed result with the panic text preserved.
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("engine panic recovered", "panic", r, "trace_id", traceID)
			res.Status = StatusFailed
			res.FinalAnswer = ""
			res.FinalAnswerSet = false
			res.Metadata["error"] = fmt.Sprint(r)
		}
		a.finalize(ctx, res, task, start, traceID, invokedNames)
	}()

	a.emitter.Emit(ctx, core.NewEvent(core.EventRunStarted, eventSource, traceID, map[string]any{
		"task":    task,
		"plan_id": res.PlanID,
	}))

	// A blocked task never reaches planning or dispatch. The deferred
	// finalize still records the run, so blocks show up in feedback.
	if a.screen != nil {
		if v := a.screen.Inspect(ctx, task); v.Blocked {
			a.logger.Warn("task blocked", "rule", v.Rule, "reason", v.Reason, "trace_id", traceID)
			recordBlockedMetric(ctx, v.Rule)
			res.Status = StatusFailed
			res.Metadata["blocked_by"] = v.Rule
			res.Metadata["error"] = v.Reason
			return res
		}
	}

	rc := &skills.RunContext{
		TraceID:       traceID,
		CorrelationID: corrID,
		Memory:        a.memory,
		Logger:        a.logger,
		Breakers:      a.breakers,
		Emitter:       a.emitter,
	}

	var (
		working      = task
		candidate    string
		candidateSet bool
		planIdx      int
	)

	for len(res.StepResults) < a.maxSteps {
		if ctx.Err() != nil {
			res.Metadata["cancelled"] = true
			break
		}

		// Step source: next plan step, else the router.
		var (
			stepID    string
			skillName string
			payload   map[string]any
			fromPlan  bool
		)
		if plan != nil && planIdx < len(plan.Steps) {
			step := plan.Steps[planIdx]
			planIdx++
			stepID = step.ID
			skillName = step.Skill
			payload = step.Input
			if candidateSet {
				payload = planner.SubstituteLastResult(payload, candidate)
			}
			fromPlan = true
		} else {
			decision, routeErr := a.route(ctx, working)
			if routeErr != nil {
				a.logger.Warn("routing failed", "error", routeErr, "trace_id", traceID)
				sr := StepResult{
					StepID:  fmt.Sprintf("step-%d", len(res.StepResults)+1),
					Error:   routeErr.Error(),
					Attempt: 1,
				}
				res.recordStep(sr)
				a.emitStep(ctx, traceID, sr, "")
				if len(res.StepResults) >= a.maxSteps {
					break
				}
				// skillName stays empty so dispatch falls through to the
				// fallback skill.
			} else {
				skillName = decision.SkillName
				payload = decision.Params
				a.logger.Debug("routed", "skill", decision.SkillName, "confidence", decision.Confidence)
			}
		}

		// Dispatch: named skill, else the fallback with a query payload.
		invoked, ok := a.registry.Lookup(skillName)
		if !ok {
			if invoked, ok = a.registry.Lookup(a.fallback); ok {
				payload = map[string]any{"query": working, "text": working}
			}
		}
		if stepID == "" {
			stepID = fmt.Sprintf("step-%d", len(res.StepResults)+1)
		}

		planExhausted := plan == nil || planIdx >= len(plan.Steps)

		if !ok {
			nfErr := errors.New(errors.CodeSkillNotFound,
				fmt.Sprintf("skill %q not found and fallback %q unavailable", skillName, a.fallback), nil)
			sr := StepResult{StepID: stepID, Error: nfErr.Error(), Attempt: 1}
			res.recordStep(sr)
			a.emitStep(ctx, traceID, sr, skillName)
			if candidateSet && planExhausted {
				res.succeed(candidate)
				break
			}
			if fromPlan && !planExhausted {
				continue
			}
			break
		}

		// Invoke through the resilience layer, one span per step.
		in := skills.NewSkillInput(payload)
		stepCtx, stepSpan := a.tracer.Start(ctx, "Agent.Step",
			trace.WithAttributes(telemetry.StepAttributes(stepID, invoked.Name())...),
		)
		stepStart := time.Now()
		out, err := a.invoker.Invoke(stepCtx, invoked, in, rc)
		stepSpan.End()

		invokedNames = append(invokedNames, invoked.Name())

		sr := StepResult{
			StepID:          stepID,
			Success:         err == nil,
			ExecutionTimeMS: time.Since(stepStart).Milliseconds(),
			Attempt:         1,
		}
		if err != nil {
			sr.Error = err.Error()
		} else {
			sr.Output = &out
		}
		res.recordStep(sr)
		a.emitStep(ctx, traceID, sr, invoked.Name())
		recordStepMetric(ctx, invoked.Name(), sr.ExecutionTimeMS)

		// Answer extraction. The candidate survives later steps that yield
		// none, and doubles as the substitution value for placeholder
		// inputs.
		stepAnswer := ""
		stepAnswerFound := false
		if sr.Success {
			if ans, found := extractCandidate(out.Payload); found {
				stepAnswer, stepAnswerFound = ans, true
				candidate, candidateSet = ans, true
			}
		}

		// Memory write: the extracted answer, else the raw text input.
		if a.memory != nil {
			if stepAnswerFound {
				a.remember(ctx, stepAnswer, traceID, stepID, invoked.Name())
			} else if text, isStr := payload["text"].(string); isStr && text != "" {
				a.remember(ctx, text, traceID, stepID, invoked.Name())
			}
		}

		// Termination checks, in order.
		if candidateSet && planExhausted {
			res.succeed(candidate)
			break
		}

		if sr.Success && invoked.Name() == skills.MemorySearchSkillName && planExhausted {
			if matches, isList := asMatchList(out.Payload["matches"]); isList {
				normalized := normalizedQuery(payload, working)
				if text, found := resolveMemoryMatch(matches, normalized); found {
					a.remember(ctx, text, traceID, stepID, invoked.Name())
					res.succeed(text)
				} else {
					a.remember(ctx, NoMemoryAnswer, traceID, stepID, invoked.Name())
					res.FinalAnswer = NoMemoryAnswer
					res.FinalAnswerSet = true
				}
				break
			}
		}

		if !sr.Success {
			// Mid-plan failures leave the remaining steps a chance to
			// recover; anywhere else the loop halts with the status
			// reflecting any candidate found so far.
			if fromPlan && !planExhausted {
				continue
			}
			break
		}

		working = stringifyPayload(out.Payload)
	}

	return res
}

// route resolves the next skill outside a plan. A missing router, a router
// error, and an empty skill name all count as routing failures.
func (a *Agent) route(ctx context.Context, working string) (planner.Decision, error) {
	if a.router == nil {
		return planner.Decision{}, errors.New(errors.CodeRoutingFailure, "no router configured", nil)
	}
	decision, err := a.router.Route(ctx, working)
	if err != nil {
		return planner.Decision{}, err
	}
	if decision.SkillName == "" {
		return planner.Decision{}, errors.New(errors.CodeRoutingFailure, "router returned no skill", nil)
	}
	return decision, nil
}

// normalizedQuery recovers the query a memory search was answering.
func normalizedQuery(params map[string]any, working string) string {
	if q, ok := params["query"].(string); ok && strings.TrimSpace(q) != "" {
		return q
	}
	if t, ok := params["text"].(string); ok && strings.TrimSpace(t) != "" {
		return t
	}
	return working
}

// remember writes a finding into long-term memory, best-effort.
func (a *Agent) remember(ctx context.Context, content, traceID, stepID, skill string) {
	if a.memory == nil {
		return
	}
	_, err := a.memory.Add(ctx, content, memory.TierLongTerm, map[string]any{
		"trace_id": traceID,
		"step_id":  stepID,
		"skill":    skill,
	})
	if err != nil {
		a.logger.Warn("memory write failed", "error", err, "trace_id", traceID)
	}
}

// recallMemoryUsed surfaces the long-term records relevant to the task.
func (a *Agent) recallMemoryUsed(ctx context.Context, task string) []string {
	records, err := a.memory.Search(ctx, task, memory.TierLongTerm, recallTopK)
	if err != nil {
		a.logger.Debug("memory recall failed", "error", err)
		return nil
	}
	used := make([]string, 0, len(records))
	for _, r := range records {
		used = append(used, r.Content)
	}
	return used
}

func (a *Agent) emitStep(ctx context.Context, traceID string, sr StepResult, skill string) {
	payload := map[string]any{
		"step_id":    sr.StepID,
		"skill":      skill,
		"success":    sr.Success,
		"elapsed_ms": sr.ExecutionTimeMS,
	}
	if sr.Error != "" {
		payload["error"] = sr.Error
	}
	a.emitter.Emit(ctx, core.NewEvent(core.EventStepCompleted, eventSource, traceID, payload))
}

// finalize scrubs the outgoing answer, stamps timing metadata, populates
// recalled memory, emits the run-completed event, and records feedback.
// Sink errors are logged, never propagated.
func (a *Agent) finalize(ctx context.Context, res *AgentResult, task string, start time.Time, traceID string, invoked []string) {
	res.TotalTimeMS = time.Since(start).Milliseconds()
	res.CompletedAt = time.Now().UTC()
	res.Metadata["steps_taken"] = len(res.StepResults)
	res.Metadata["plan_id"] = res.PlanID
	res.Metadata["trace_id"] = traceID

	// Redaction guards the boundary only; step outputs already written to
	// memory keep their original text.
	if a.screen != nil && res.FinalAnswerSet {
		if clean, spans := a.screen.Redact(ctx, res.FinalAnswer); len(spans) > 0 {
			res.FinalAnswer = clean
			res.Metadata["redactions"] = len(spans)
		}
	}

	if a.memory != nil && res.MemoryUsed == nil {
		res.MemoryUsed = a.recallMemoryUsed(ctx, task)
	}

	a.emitter.Emit(ctx, core.NewEvent(core.EventRunCompleted, eventSource, traceID, map[string]any{
		"status":        string(res.Status),
		"steps_taken":   len(res.StepResults),
		"total_time_ms": res.TotalTimeMS,
	}))
	recordRunMetric(ctx, res.Status)

	rec := feedback.Record{
		Timestamp:     time.Now().UTC(),
		Query:         task,
		SkillsInvoked: invoked,
		Outcome:       string(res.Status),
		Metrics: map[string]float64{
			"total_time_ms":   float64(res.TotalTimeMS),
			"steps_taken":     float64(len(res.StepResults)),
			"steps_completed": float64(res.StepsCompleted),
		},
		Metadata: map[string]any{
			"plan_id":  res.PlanID,
			"trace_id": traceID,
		},
	}
	if err := a.feedback.Record(ctx, rec); err != nil {
		a.logger.Warn("feedback sink failed", "error", err)
	}

	a.logger.Info("engine.run.completed",
		"status", string(res.Status),
		"steps", len(res.StepResults),
		"duration_ms", res.TotalTimeMS,
		"trace_id", traceID,
	)
}
