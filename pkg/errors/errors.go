// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Metis.
package errors

import (
	stderrors "errors"
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Metis errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnavailable indicates a dependency was unreachable.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeRoutingFailure indicates no skill could be determined for a query.
	CodeRoutingFailure ErrorCode = "ROUTING_FAILURE"

	// CodeSkillNotFound indicates the named skill is not registered.
	CodeSkillNotFound ErrorCode = "SKILL_NOT_FOUND"

	// CodeSkillExecutionFailure indicates the unit of work returned an error.
	CodeSkillExecutionFailure ErrorCode = "SKILL_EXECUTION_FAILURE"

	// CodeInvocationTimeout indicates a skill call exceeded its SLA timeout.
	CodeInvocationTimeout ErrorCode = "INVOCATION_TIMEOUT"

	// CodeCircuitOpen indicates a call was rejected by an open circuit breaker
	// without attempting the skill.
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// CodeSchemaValidation indicates a payload did not conform to a skill's
	// declared input or output schema.
	CodeSchemaValidation ErrorCode = "SCHEMA_VALIDATION_FAILURE"

	// CodeMemoryBackend indicates a memory persistence or index I/O error.
	CodeMemoryBackend ErrorCode = "MEMORY_BACKEND_FAILURE"
)

// MetisError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type MetisError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // For HTTP/gRPC surfaces
}

// Error implements the error interface.
func (e *MetisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *MetisError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *MetisError) MarshalJSON() ([]byte, error) {
	type Alias MetisError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new MetisError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *MetisError {
	return &MetisError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *MetisError) WithContext(key string, value interface{}) *MetisError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *MetisError) WithAttribute(key, value string) *MetisError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *MetisError) WithRecoverable(recoverable bool) *MetisError {
	e.Recoverable = recoverable
	return e
}

// AsMetisError attempts to convert an error to a MetisError.
// Returns the error as MetisError if it is one, or wraps it otherwise.
func AsMetisError(err error) *MetisError {
	if err == nil {
		return nil
	}
	var me *MetisError
	if stderrors.As(err, &me) {
		return me
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}

// CodeFromError extracts the ErrorCode from an error chain.
// Returns CodeInternal for non-Metis errors and "" for nil.
func CodeFromError(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var me *MetisError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return CodeInternal
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var me *MetisError
	if stderrors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *MetisError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to gRPC/HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeSkillNotFound:
		return 404 // NOT_FOUND
	case CodeInvalidInput, CodeSchemaValidation:
		return 400 // INVALID_ARGUMENT
	case CodeInvocationTimeout:
		return 408 // DEADLINE_EXCEEDED
	case CodeCircuitOpen, CodeUnavailable:
		return 503 // UNAVAILABLE
	default:
		return 500 // INTERNAL
	}
}
