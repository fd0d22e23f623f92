// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package planner provides the plan document format, routing and planning
// contracts, and the reference implementations the engine falls back to
// when no model-driven planner is wired.
package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// PlanStep is one step of an explicit plan. DependsOn is carried for
// forward compatibility with a DAG scheduler; the engine currently executes
// steps strictly in order.
type PlanStep struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Skill       string         `json:"skill" yaml:"skill"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Input       map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	RetryCount  int            `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
}

// AgentPlan is an ordered list of steps toward a goal.
type AgentPlan struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Goal      string     `json:"goal" yaml:"goal"`
	Steps     []PlanStep `json:"steps" yaml:"steps"`
	CreatedAt time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
}

// Validate ensures the plan is well-formed for execution. Step ids default
// to their position; a missing plan id gets a fresh one.
func (p *AgentPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	for i := range p.Steps {
		if p.Steps[i].Skill == "" {
			return fmt.Errorf("step %d missing skill", i+1)
		}
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
	}
	return nil
}

// ParsePlanJSON loads a plan from JSON and validates it.
func ParsePlanJSON(data []byte) (*AgentPlan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var plan AgentPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse json plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ParsePlanYAML loads a plan from YAML and validates it.
func ParsePlanYAML(data []byte) (*AgentPlan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var plan AgentPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ParsePlan loads a plan from YAML or JSON, detecting the format.
func ParsePlan(data []byte) (*AgentPlan, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty plan payload")
	}
	if strings.HasPrefix(trimmed, "{") {
		if plan, err := ParsePlanJSON(data); err == nil {
			return plan, nil
		}
	}
	if plan, err := ParsePlanYAML(data); err == nil {
		return plan, nil
	}
	if plan, err := ParsePlanJSON(data); err == nil {
		return plan, nil
	}
	return nil, fmt.Errorf("unsupported plan format")
}

// LoadPlan loads a plan from a YAML or JSON file.
func LoadPlan(path string) (*AgentPlan, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("plan path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParsePlanJSON(data)
	case ".yaml", ".yml":
		return ParsePlanYAML(data)
	default:
		return ParsePlan(data)
	}
}
