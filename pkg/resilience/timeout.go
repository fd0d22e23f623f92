// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/metis-ai/metis/pkg/errors"
)

// WithTimeout executes fn under a wall-clock budget and returns
// errors.CodeInvocationTimeout when the budget is exhausted.
//
// A non-positive budget rejects deterministically: the work is still started
// (so side effects match the budgeted path) but its result is discarded. On
// timeout the inner context is canceled so cooperative work can stop;
// non-cooperative work may keep running in the background after the caller
// gives up.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	inner, cancel := context.WithCancel(ctx)

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(inner)
		done <- result{value, err}
	}()

	var zero T

	if timeout <= 0 {
		cancel()
		return zero, timeoutErr(timeout)
	}
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return zero, errors.New(errors.CodeInternal, "invocation canceled", ctx.Err()).
			WithRecoverable(false)
	case <-timer.C:
		return zero, timeoutErr(timeout)
	case res := <-done:
		return res.value, res.err
	}
}

func timeoutErr(timeout time.Duration) error {
	return errors.New(errors.CodeInvocationTimeout, "operation exceeded timeout", nil).
		WithContext("timeout", timeout.String()).
		WithRecoverable(true)
}
