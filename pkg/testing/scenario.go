// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides utilities for testing Metis skills and engine
// wiring: declarative skill scenarios, scripted skill fakes, an event
// collector, and assertion helpers.
//
// Example usage:
//
//	scenario := testing.NewScenario("lookup test").
//	    WithParam("query", "capital of France").
//	    ExpectNoError().
//	    ExpectOutput("answer", testing.Contains("Paris"))
//
//	result := scenario.Run(t, skill)
//	scenario.Assert(t, result)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/metis-ai/metis/pkg/core"
	"github.com/metis-ai/metis/pkg/skills"
)

// Scenario defines a declarative test for a single skill invocation. The
// skill runs through the real invoker, so SLAs, retries, validation, and
// lifecycle events all behave as in production.
type Scenario struct {
	name          string
	description   string
	payload       map[string]any
	timeout       time.Duration
	expectations  []Expectation
	setupFuncs    []func() error
	teardownFuncs []func() error
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	Output   skills.SkillOutput
	Error    error
	Events   []core.Event
	Duration time.Duration
}

// NewScenario creates a new test scenario with the given name.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		payload: make(map[string]any),
		timeout: 30 * time.Second,
	}
}

// WithDescription adds a description to the scenario.
func (s *Scenario) WithDescription(desc string) *Scenario {
	s.description = desc
	return s
}

// WithPayload replaces the input payload.
func (s *Scenario) WithPayload(payload map[string]any) *Scenario {
	if payload != nil {
		s.payload = payload
	}
	return s
}

// WithParam sets a single input payload field.
func (s *Scenario) WithParam(key string, value any) *Scenario {
	s.payload[key] = value
	return s
}

// WithTimeout bounds the whole scenario. Default 30s.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithSetup adds a setup function to run before the scenario.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setupFuncs = append(s.setupFuncs, fn)
	return s
}

// WithTeardown adds a teardown function to run after the scenario.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardownFuncs = append(s.teardownFuncs, fn)
	return s
}

// Expect adds an expectation to the scenario.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectNoError expects the invocation to succeed.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects an invocation error matching the given pattern.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectOutput expects the output payload field to match when rendered
// as a string.
func (s *Scenario) ExpectOutput(key string, matcher StringMatcher) *Scenario {
	return s.Expect(&outputExpectation{key: key, matcher: matcher})
}

// ExpectEvent expects a lifecycle event of the given type.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectMinDuration expects the invocation to take at least d.
func (s *Scenario) ExpectMinDuration(d time.Duration) *Scenario {
	return s.Expect(&minDurationExpectation{min: d})
}

// ExpectMaxDuration expects the invocation to complete within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run executes the scenario against the given skill and returns the
// result for assertion.
func (s *Scenario) Run(t *testing.T, skill skills.Skill) *ScenarioResult {
	t.Helper()

	for _, setup := range s.setupFuncs {
		if err := setup(); err != nil {
			t.Fatalf("scenario %q setup failed: %v", s.name, err)
		}
	}
	defer func() {
		for _, teardown := range s.teardownFuncs {
			if err := teardown(); err != nil {
				t.Errorf("scenario %q teardown failed: %v", s.name, err)
			}
		}
	}()

	captured := NewCapturedEvents()
	rc := &skills.RunContext{
		TraceID: fmt.Sprintf("scenario-%s", s.name),
		Emitter: captured,
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	out, err := skills.NewInvoker().Invoke(ctx, skill, skills.NewSkillInput(s.payload), rc)

	return &ScenarioResult{
		Output:   out,
		Error:    err,
		Events:   captured.Events(),
		Duration: time.Since(start),
	}
}

// Assert checks every expectation and reports failures to the test.
func (s *Scenario) Assert(t *testing.T, result *ScenarioResult) {
	t.Helper()
	for _, exp := range s.expectations {
		if err := exp.Check(result); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", s.name, exp.Description(), err)
		}
	}
}

// StringMatcher defines how to match strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains returns a matcher for substring presence.
func Contains(substr string) StringMatcher {
	return &containsMatcher{substr: substr}
}

// Equals returns a matcher for exact equality.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// Regex returns a matcher for a regular expression. An invalid pattern
// never matches.
func Regex(pattern string) StringMatcher {
	re, _ := regexp.Compile(pattern)
	return &regexMatcher{pattern: pattern, re: re}
}

// HasPrefix returns a matcher for a string prefix.
func HasPrefix(prefix string) StringMatcher {
	return &prefixMatcher{prefix: prefix}
}

// HasSuffix returns a matcher for a string suffix.
func HasSuffix(suffix string) StringMatcher {
	return &suffixMatcher{suffix: suffix}
}

type containsMatcher struct {
	substr string
}

func (m *containsMatcher) Match(s string) bool {
	return strings.Contains(s, m.substr)
}

func (m *containsMatcher) Description() string {
	return fmt.Sprintf("contains %q", m.substr)
}

type equalsMatcher struct {
	expected string
}

func (m *equalsMatcher) Match(s string) bool {
	return s == m.expected
}

func (m *equalsMatcher) Description() string {
	return fmt.Sprintf("equals %q", m.expected)
}

type regexMatcher struct {
	pattern string
	re      *regexp.Regexp
}

func (m *regexMatcher) Match(s string) bool {
	return m.re != nil && m.re.MatchString(s)
}

func (m *regexMatcher) Description() string {
	return fmt.Sprintf("matches regex %q", m.pattern)
}

type prefixMatcher struct {
	prefix string
}

func (m *prefixMatcher) Match(s string) bool {
	return strings.HasPrefix(s, m.prefix)
}

func (m *prefixMatcher) Description() string {
	return fmt.Sprintf("has prefix %q", m.prefix)
}

type suffixMatcher struct {
	suffix string
}

func (m *suffixMatcher) Match(s string) bool {
	return strings.HasSuffix(s, m.suffix)
}

func (m *suffixMatcher) Description() string {
	return fmt.Sprintf("has suffix %q", m.suffix)
}

type outputExpectation struct {
	key     string
	matcher StringMatcher
}

func (e *outputExpectation) Check(r *ScenarioResult) error {
	value, ok := r.Output.Payload[e.key]
	if !ok {
		return fmt.Errorf("output has no field %q", e.key)
	}
	rendered := fmt.Sprintf("%v", value)
	if !e.matcher.Match(rendered) {
		return fmt.Errorf("output %s=%q does not match: %s", e.key, rendered, e.matcher.Description())
	}
	return nil
}

func (e *outputExpectation) Description() string {
	return fmt.Sprintf("output %s %s", e.key, e.matcher.Description())
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string {
	return "no error"
}

type errorExpectation struct {
	matcher StringMatcher
}

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error matching %s, got nil", e.matcher.Description())
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error.Error(), e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return fmt.Sprintf("error %s", e.matcher.Description())
}

type eventExpectation struct {
	eventType core.EventType
}

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event type %q was not emitted", e.eventType)
}

func (e *eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type minDurationExpectation struct {
	min time.Duration
}

func (e *minDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration < e.min {
		return fmt.Errorf("duration %v is less than minimum %v", r.Duration, e.min)
	}
	return nil
}

func (e *minDurationExpectation) Description() string {
	return fmt.Sprintf("duration >= %v", e.min)
}

type maxDurationExpectation struct {
	max time.Duration
}

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}
