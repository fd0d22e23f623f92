// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/metis-ai/metis/pkg/errors"
)

// Compactor rewrites a store's persistent layout, dropping dead entries.
type Compactor interface {
	Compact(ctx context.Context) error
}

// FeedbackPruner deletes feedback recorded before a cutoff and reports
// how many entries went away.
type FeedbackPruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// CompactionTick returns a tick function that compacts the given store.
func CompactionTick(c Compactor, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if c == nil {
			return errors.New(errors.CodeInvalidInput, "no store to compact", nil)
		}
		start := time.Now()
		if err := c.Compact(ctx); err != nil {
			return errors.New(errors.CodeMemoryBackend, "store compaction failed", err)
		}
		logger.Info("runtime.maintenance.compaction",
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}
}

// FeedbackPruneTick returns a tick function that deletes feedback older
// than the retention window.
func FeedbackPruneTick(p FeedbackPruner, retention time.Duration, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if p == nil {
			return errors.New(errors.CodeInvalidInput, "no feedback sink to prune", nil)
		}
		if retention <= 0 {
			return errors.New(errors.CodeInvalidInput, "feedback retention must be positive", nil)
		}
		cutoff := time.Now().UTC().Add(-retention)
		pruned, err := p.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("runtime.maintenance.feedback_prune",
			slog.Int64("pruned", pruned),
			slog.Time("cutoff", cutoff),
		)
		return nil
	}
}
