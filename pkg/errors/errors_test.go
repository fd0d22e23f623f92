// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("network timeout")
	me := New(CodeInvocationTimeout, "skill invocation timed out", cause)

	if me.Code != CodeInvocationTimeout {
		t.Errorf("expected CodeInvocationTimeout, got %v", me.Code)
	}
	if me.Message != "skill invocation timed out" {
		t.Errorf("expected message 'skill invocation timed out', got %q", me.Message)
	}
	if me.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(me, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	me := New(CodeSkillExecutionFailure, "skill failed", nil)
	me.WithContext("skill", "memory_search").
		WithContext("params", map[string]interface{}{"query": "largest moon"})

	if me.Context["skill"] != "memory_search" {
		t.Errorf("expected context skill to be 'memory_search'")
	}
	if me.Context["params"] == nil {
		t.Errorf("expected context params to be set")
	}
}

func TestWithAttribute(t *testing.T) {
	me := New(CodeSkillExecutionFailure, "skill failed", nil)
	me.WithAttribute("skill_name", "memory_search").
		WithAttribute("attempt", "3")

	if me.Attributes["skill_name"] != "memory_search" {
		t.Errorf("expected attribute skill_name")
	}
	if me.Attributes["attempt"] != "3" {
		t.Errorf("expected attribute attempt")
	}
}

func TestWithRecoverable(t *testing.T) {
	me := New(CodeSkillExecutionFailure, "network error", nil)
	if me.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	me.WithRecoverable(true)
	if !me.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		me       *MetisError
		expected string
	}{
		{
			name:     "with cause",
			me:       New(CodeInvocationTimeout, "operation timed out", errors.New("deadline exceeded")),
			expected: "[INVOCATION_TIMEOUT] operation timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			me:       New(CodeSkillNotFound, "skill not found", nil),
			expected: "[SKILL_NOT_FOUND] skill not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.me.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsMetisError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "already MetisError",
			err:      New(CodeSkillExecutionFailure, "failed", nil),
			expected: CodeSkillExecutionFailure,
		},
		{
			name:     "wrapped MetisError",
			err:      fmt.Errorf("step 3: %w", New(CodeCircuitOpen, "rejected", nil)),
			expected: CodeCircuitOpen,
		},
		{
			name:     "generic error",
			err:      errors.New("generic error"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := AsMetisError(tt.err)
			if tt.expected == "" {
				if me != nil {
					t.Errorf("expected nil for nil error")
				}
			} else {
				if me == nil {
					t.Errorf("expected non-nil MetisError")
				} else if me.Code != tt.expected {
					t.Errorf("expected %v, got %v", tt.expected, me.Code)
				}
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeCircuitOpen, "circuit open for skill", nil)
	wrapped := fmt.Errorf("invoke: %w", err)

	if !IsCode(err, CodeCircuitOpen) {
		t.Errorf("expected IsCode to match direct error")
	}
	if !IsCode(wrapped, CodeCircuitOpen) {
		t.Errorf("expected IsCode to match through wrapping")
	}
	if IsCode(err, CodeInvocationTimeout) {
		t.Errorf("expected IsCode to reject a different code")
	}
	if IsCode(errors.New("plain"), CodeCircuitOpen) {
		t.Errorf("expected IsCode to reject non-Metis errors")
	}
}

func TestCodeFromError(t *testing.T) {
	if got := CodeFromError(nil); got != "" {
		t.Errorf("expected empty code for nil, got %v", got)
	}
	if got := CodeFromError(New(CodeMemoryBackend, "db write failed", nil)); got != CodeMemoryBackend {
		t.Errorf("expected CodeMemoryBackend, got %v", got)
	}
	if got := CodeFromError(errors.New("plain")); got != CodeInternal {
		t.Errorf("expected CodeInternal for plain error, got %v", got)
	}
}

func TestMarshalJSON(t *testing.T) {
	me := New(CodeSkillExecutionFailure, "skill failed", errors.New("network error"))
	me.WithContext("skill", "memory_search").
		WithAttribute("attempt", "1").
		WithRecoverable(true)

	data, err := json.Marshal(me)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "SKILL_EXECUTION_FAILURE" {
		t.Errorf("expected code 'SKILL_EXECUTION_FAILURE', got %v", result["code"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeSkillNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeSchemaValidation, 400},
		{CodeInvocationTimeout, 408},
		{CodeCircuitOpen, 503},
		{CodeUnavailable, 503},
		{CodeInternal, 500},
		{CodeMemoryBackend, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			me := New(tt.code, "test", nil)
			if me.StatusCode != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, me.StatusCode)
			}
		})
	}
}
