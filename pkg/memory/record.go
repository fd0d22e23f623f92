// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the tiered memory facade and its backing stores:
// an ephemeral keyword-matched short-term tier, a structured scratchpad, and
// a persistent vector-indexed long-term tier.
package memory

import (
	"context"
	"time"
)

// Tier names a memory tier with its own retention and lookup strategy.
type Tier string

const (
	// TierShortTerm is unbounded in-process memory, cleared per session.
	TierShortTerm Tier = "short_term"

	// TierLongTerm is persistent, embedding-backed memory.
	TierLongTerm Tier = "long_term"

	// TierScratchpad holds working state for a single plan's lifetime.
	TierScratchpad Tier = "scratchpad"

	// TierAll addresses every tier at once; valid for Search and Clear.
	TierAll Tier = "all"
)

// MemoryRecord is one stored memory entry. Records are created on write and
// never mutated; deletion from the long-term tier is logical.
type MemoryRecord struct {
	ID        string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
	Embedding []float32

	// Score is populated at search time by similarity-backed stores;
	// zero for keyword matches.
	Score float32
}

// Backend is the storage surface shared by all tiers.
type Backend interface {
	Add(ctx context.Context, content string, metadata map[string]any) (string, error)
	Search(ctx context.Context, query string, topK int) ([]MemoryRecord, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
