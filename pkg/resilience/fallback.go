// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import "context"

// Fallback computes a substitute result after a primary operation has
// failed. Implementations receive the primary error and may fail in turn,
// which lets chains hand the most recent error down the line.
type Fallback[T any] interface {
	Recover(ctx context.Context, primaryErr error) (T, error)
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Recover implements Fallback.
func (f FallbackFunc[T]) Recover(ctx context.Context, primaryErr error) (T, error) {
	return f(ctx, primaryErr)
}

// Static returns a fallback that always succeeds with value.
func Static[T any](value T) Fallback[T] {
	return FallbackFunc[T](func(context.Context, error) (T, error) {
		return value, nil
	})
}

// Chain tries each fallback in order and returns the first success. Each
// failure becomes the primary error of the next fallback; when all fail,
// the last error is returned.
func Chain[T any](fallbacks ...Fallback[T]) Fallback[T] {
	return FallbackFunc[T](func(ctx context.Context, primaryErr error) (T, error) {
		var zero T
		lastErr := primaryErr
		for _, fb := range fallbacks {
			value, err := fb.Recover(ctx, lastErr)
			if err == nil {
				return value, nil
			}
			lastErr = err
		}
		return zero, lastErr
	})
}

// WithFallback runs fn and, on error, recovers through fallback; the
// primary error is discarded when the fallback succeeds. Cancellation is
// not recovered: once ctx is done the primary error returns as-is, since
// the caller gave up rather than the dependency failing.
func WithFallback[T any](ctx context.Context, fn func(ctx context.Context) (T, error), fallback Fallback[T]) (T, error) {
	value, err := fn(ctx)
	if err == nil {
		return value, nil
	}
	if ctx.Err() != nil {
		var zero T
		return zero, err
	}
	return fallback.Recover(ctx, err)
}
