// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/skills"
)

// ScriptedSkill is a fake skill returning queued results in order. It
// records every input it receives, so tests can assert on payloads the
// engine built. The SLA defaults to skills.DefaultSLA so scripted skills
// run cleanly through the real invoker; override it with WithSLA.
type ScriptedSkill struct {
	name        string
	description string
	sla         skills.SLA

	mu           sync.Mutex
	results      []ScriptedResult
	currentIndex int
	inputs       []skills.SkillInput
	defaultErr   error
	onInvoke     func(in skills.SkillInput) (skills.SkillOutput, error)
}

// ScriptedResult is one queued outcome for a ScriptedSkill.
type ScriptedResult struct {
	Payload map[string]any
	Err     error
}

// NewScriptedSkill creates a scripted skill with the given name.
func NewScriptedSkill(name string) *ScriptedSkill {
	return &ScriptedSkill{
		name:        name,
		description: fmt.Sprintf("scripted skill %s", name),
		sla:         skills.DefaultSLA(),
	}
}

// AddResult queues a successful result with the given payload.
func (s *ScriptedSkill) AddResult(payload map[string]any) *ScriptedSkill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, ScriptedResult{Payload: payload})
	return s
}

// AddError queues a failing result.
func (s *ScriptedSkill) AddError(err error) *ScriptedSkill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, ScriptedResult{Err: err})
	return s
}

// WithDefaultError sets the error returned once the queue is exhausted.
// Without one, exhaustion itself is the error.
func (s *ScriptedSkill) WithDefaultError(err error) *ScriptedSkill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultErr = err
	return s
}

// WithSLA overrides the skill's SLA.
func (s *ScriptedSkill) WithSLA(sla skills.SLA) *ScriptedSkill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sla = sla
	return s
}

// WithInvokeFunc bypasses the queue with a custom handler.
func (s *ScriptedSkill) WithInvokeFunc(fn func(in skills.SkillInput) (skills.SkillOutput, error)) *ScriptedSkill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvoke = fn
	return s
}

// Name implements skills.Skill.
func (s *ScriptedSkill) Name() string { return s.name }

// Version implements skills.Skill.
func (s *ScriptedSkill) Version() string { return "0.0.0-test" }

// Description implements skills.Skill.
func (s *ScriptedSkill) Description() string { return s.description }

// SLA implements skills.Skill.
func (s *ScriptedSkill) SLA() skills.SLA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sla
}

// Invoke implements skills.Skill.
func (s *ScriptedSkill) Invoke(_ context.Context, in skills.SkillInput, _ *skills.RunContext) (skills.SkillOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputs = append(s.inputs, in)

	if s.onInvoke != nil {
		return s.onInvoke(in)
	}
	if s.currentIndex >= len(s.results) {
		if s.defaultErr != nil {
			return skills.SkillOutput{}, s.defaultErr
		}
		return skills.SkillOutput{}, fmt.Errorf("no more scripted results for %s (call %d)", s.name, s.currentIndex+1)
	}

	result := s.results[s.currentIndex]
	s.currentIndex++
	if result.Err != nil {
		return skills.SkillOutput{}, result.Err
	}
	return skills.NewSkillOutput(result.Payload), nil
}

// Inputs returns a copy of every captured input in call order.
func (s *ScriptedSkill) Inputs() []skills.SkillInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]skills.SkillInput, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// LastInput returns the most recent captured input, or nil before the
// first call.
func (s *ScriptedSkill) LastInput() *skills.SkillInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return nil
	}
	in := s.inputs[len(s.inputs)-1]
	return &in
}

// CallCount returns the number of Invoke calls.
func (s *ScriptedSkill) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

// Reset rewinds the queue and clears captured inputs.
func (s *ScriptedSkill) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentIndex = 0
	s.inputs = s.inputs[:0]
}

var _ skills.Skill = (*ScriptedSkill)(nil)

// FailingSkill always returns the configured error.
type FailingSkill struct {
	name string
	err  error
}

// NewFailingSkill creates a skill that fails every invocation with err.
func NewFailingSkill(name string, err error) *FailingSkill {
	if err == nil {
		err = fmt.Errorf("skill %s failed", name)
	}
	return &FailingSkill{name: name, err: err}
}

func (s *FailingSkill) Name() string        { return s.name }
func (s *FailingSkill) Version() string     { return "0.0.0-test" }
func (s *FailingSkill) Description() string { return "always-failing skill" }
func (s *FailingSkill) SLA() skills.SLA     { return skills.DefaultSLA() }

func (s *FailingSkill) Invoke(context.Context, skills.SkillInput, *skills.RunContext) (skills.SkillOutput, error) {
	return skills.SkillOutput{}, s.err
}

var _ skills.Skill = (*FailingSkill)(nil)

// SlowSkill sleeps for a fixed delay before answering, honoring context
// cancellation. Useful for exercising timeouts and SLAs.
type SlowSkill struct {
	name  string
	delay time.Duration
	sla   skills.SLA
}

// NewSlowSkill creates a skill that waits delay before returning. The SLA
// starts at skills.DefaultSLA, so the delay wins only when WithSLA sets a
// shorter budget.
func NewSlowSkill(name string, delay time.Duration) *SlowSkill {
	return &SlowSkill{name: name, delay: delay, sla: skills.DefaultSLA()}
}

// WithSLA sets the skill's SLA, typically a timeout below the delay.
func (s *SlowSkill) WithSLA(sla skills.SLA) *SlowSkill {
	s.sla = sla
	return s
}

func (s *SlowSkill) Name() string        { return s.name }
func (s *SlowSkill) Version() string     { return "0.0.0-test" }
func (s *SlowSkill) Description() string { return "deliberately slow skill" }
func (s *SlowSkill) SLA() skills.SLA     { return s.sla }

func (s *SlowSkill) Invoke(ctx context.Context, _ skills.SkillInput, _ *skills.RunContext) (skills.SkillOutput, error) {
	select {
	case <-time.After(s.delay):
		return skills.NewSkillOutput(map[string]any{"answer": "finally done"}), nil
	case <-ctx.Done():
		return skills.SkillOutput{}, ctx.Err()
	}
}

var _ skills.Skill = (*SlowSkill)(nil)

// CapturedEvents is an EventEmitter that records events and lets tests
// block until an event type arrives, for asserting on asynchronous
// emission paths.
type CapturedEvents struct {
	mu      sync.Mutex
	events  []core.Event
	arrived chan struct{}
}

// NewCapturedEvents creates an empty collector.
func NewCapturedEvents() *CapturedEvents {
	return &CapturedEvents{arrived: make(chan struct{}, 64)}
}

// Emit implements core.EventEmitter.
func (c *CapturedEvents) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	select {
	case c.arrived <- struct{}{}:
	default:
	}
}

// Events returns a copy of the captured events in order.
func (c *CapturedEvents) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the captured event types in order.
func (c *CapturedEvents) Types() []core.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

// Has reports whether an event of the given type was captured.
func (c *CapturedEvents) Has(eventType core.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

// Count returns the number of captured events.
func (c *CapturedEvents) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// WaitFor blocks until an event of the given type has been captured or
// the timeout expires, reporting whether it arrived.
func (c *CapturedEvents) WaitFor(eventType core.EventType, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if c.Has(eventType) {
			return true
		}
		select {
		case <-c.arrived:
		case <-deadline.C:
			return c.Has(eventType)
		}
	}
}

// Reset discards captured events.
func (c *CapturedEvents) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

var _ core.EventEmitter = (*CapturedEvents)(nil)
