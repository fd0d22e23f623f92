// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"

	"github.com/metis-ai/metis/pkg/errors"
)

// Planner produces an explicit plan for a goal. Optional for the engine;
// without one it degrades to router-only operation.
type Planner interface {
	Plan(ctx context.Context, goal string, hints map[string]any) (*AgentPlan, error)
}

// StaticPlanner always returns the same plan, with the goal filled in. It
// is the reference implementation for deterministic pipelines and tests.
type StaticPlanner struct {
	plan *AgentPlan
}

// NewStaticPlanner wraps a fixed plan.
func NewStaticPlanner(plan *AgentPlan) *StaticPlanner {
	return &StaticPlanner{plan: plan}
}

// Plan implements Planner. The returned plan is a copy; callers may consume
// it without affecting later calls.
func (p *StaticPlanner) Plan(_ context.Context, goal string, _ map[string]any) (*AgentPlan, error) {
	if p.plan == nil {
		return nil, errors.New(errors.CodeInternal, "static planner has no plan configured", nil)
	}

	clone := &AgentPlan{
		ID:        p.plan.ID,
		Goal:      p.plan.Goal,
		Steps:     make([]PlanStep, len(p.plan.Steps)),
		CreatedAt: p.plan.CreatedAt,
		Version:   p.plan.Version,
	}
	copy(clone.Steps, p.plan.Steps)
	if clone.Goal == "" {
		clone.Goal = goal
	}
	if err := clone.Validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "static plan is invalid", err)
	}
	return clone, nil
}
