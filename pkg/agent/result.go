// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"time"

	"github.com/metis-ai/metis/pkg/skills"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusSuccess means a final answer was produced.
	StatusSuccess Status = "success"
	// StatusPartial means the run ended without a definitive answer.
	StatusPartial Status = "partial"
	// StatusFailed means the engine itself failed unexpectedly.
	StatusFailed Status = "failed"
)

// StepResult records the outcome of one executed step. It is never mutated
// after being appended to an AgentResult.
type StepResult struct {
	StepID          string
	Success         bool
	Output          *skills.SkillOutput
	Error           string
	ExecutionTimeMS int64
	Attempt         int
}

// AgentResult is the complete outcome of a run. FinalAnswerSet
// distinguishes an intentionally absent answer from an empty one; it is
// always true when Status is StatusSuccess.
type AgentResult struct {
	PlanID         string
	Status         Status
	FinalAnswer    string
	FinalAnswerSet bool
	StepResults    []StepResult
	TotalTimeMS    int64
	StepsCompleted int
	MemoryUsed     []string
	Metadata       map[string]any
	CompletedAt    time.Time
}

// recordStep appends a step result, keeping StepsCompleted equal to the
// number of successful steps.
func (r *AgentResult) recordStep(sr StepResult) {
	r.StepResults = append(r.StepResults, sr)
	if sr.Success {
		r.StepsCompleted++
	}
}

// succeed marks the run successful with the given final answer.
func (r *AgentResult) succeed(answer string) {
	r.Status = StatusSuccess
	r.FinalAnswer = answer
	r.FinalAnswerSet = true
}

// IsSuccessful reports whether the run produced a final answer.
func (r *AgentResult) IsSuccessful() bool {
	return r.Status == StatusSuccess && r.FinalAnswerSet
}

// FailedSteps returns the steps that did not succeed.
func (r *AgentResult) FailedSteps() []StepResult {
	var failed []StepResult
	for _, sr := range r.StepResults {
		if !sr.Success {
			failed = append(failed, sr)
		}
	}
	return failed
}
