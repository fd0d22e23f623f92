// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metis-ai/metis/pkg/errors"
)

// NoRelevantMemory is returned by RecallContext when the long-term tier has
// no matches for the query.
const NoRelevantMemory = "No relevant memory found."

// Facade unifies the three memory tiers behind one API. Construct one per
// application root and pass it down explicitly; the zero configuration uses
// in-process backends for every tier.
type Facade struct {
	shortTerm  Backend
	longTerm   Backend
	scratchpad *Scratchpad
}

// FacadeOption customizes a Facade.
type FacadeOption func(*Facade)

// WithShortTerm replaces the short-term backend.
func WithShortTerm(b Backend) FacadeOption {
	return func(f *Facade) {
		if b != nil {
			f.shortTerm = b
		}
	}
}

// WithLongTerm replaces the long-term backend, typically a *Store or the
// qdrant-backed remote store.
func WithLongTerm(b Backend) FacadeOption {
	return func(f *Facade) {
		if b != nil {
			f.longTerm = b
		}
	}
}

// WithScratchpad replaces the scratchpad.
func WithScratchpad(s *Scratchpad) FacadeOption {
	return func(f *Facade) {
		if s != nil {
			f.scratchpad = s
		}
	}
}

// NewFacade creates a tiered memory facade.
func NewFacade(opts ...FacadeOption) *Facade {
	f := &Facade{
		shortTerm:  NewInMemoryStore(),
		longTerm:   NewInMemoryStore(),
		scratchpad: NewScratchpad(nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scratchpad exposes the structured notes surface of the scratchpad tier.
func (f *Facade) Scratchpad() *Scratchpad { return f.scratchpad }

// LongTerm exposes the long-term backend for callers that need tier-specific
// operations such as delete or compaction.
func (f *Facade) LongTerm() Backend { return f.longTerm }

// Add writes content into the named tier and returns the record id.
// Scratchpad writes read metadata["tag"] for the freeform-log tag.
func (f *Facade) Add(ctx context.Context, content string, tier Tier, metadata map[string]any) (string, error) {
	switch tier {
	case TierShortTerm:
		return f.shortTerm.Add(ctx, content, metadata)
	case TierLongTerm:
		return f.longTerm.Add(ctx, content, metadata)
	case TierScratchpad:
		tag, _ := metadata["tag"].(string)
		return f.scratchpad.AddEntry(ctx, content, tag)
	default:
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown memory tier %q", tier), nil)
	}
}

// Search queries the named tier. TierAll merges every tier, orders by
// timestamp descending, dedupes by id, and caps at topK.
func (f *Facade) Search(ctx context.Context, query string, tier Tier, topK int) ([]MemoryRecord, error) {
	switch tier {
	case TierShortTerm:
		return f.shortTerm.Search(ctx, query, topK)
	case TierLongTerm:
		return f.longTerm.Search(ctx, query, topK)
	case TierScratchpad:
		return f.scratchpad.Search(ctx, query, topK)
	case TierAll:
		return f.searchAll(ctx, query, topK)
	default:
		return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown memory tier %q", tier), nil)
	}
}

func (f *Facade) searchAll(ctx context.Context, query string, topK int) ([]MemoryRecord, error) {
	var merged []MemoryRecord
	for _, backend := range []Backend{f.shortTerm, f.longTerm, f.scratchpad.log} {
		records, err := backend.Search(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, records...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, record := range merged {
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true
		out = append(out, record)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// RecallContext formats the top-k long-term matches as a numbered list with
// attached metadata tags, for direct injection as contextual input to a
// downstream skill.
func (f *Facade) RecallContext(ctx context.Context, query string, topK int) (string, error) {
	records, err := f.longTerm.Search(ctx, query, topK)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return NoRelevantMemory, nil
	}

	lines := []string{"Recent relevant memories:"}
	for i, record := range records {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, record.Content))
		if len(record.Metadata) > 0 {
			lines = append(lines, fmt.Sprintf("   (Tags: %s)", joinMetadataValues(record.Metadata)))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// RetrieveContext returns the top-k long-term matches keyed memory_1..n,
// shaped for merging into a skill input payload.
func (f *Facade) RetrieveContext(ctx context.Context, query string, topK int) (map[string]any, error) {
	records, err := f.longTerm.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(records))
	for i, record := range records {
		out[fmt.Sprintf("memory_%d", i+1)] = record.Content
	}
	return out, nil
}

// Clear empties the named tier; TierAll clears every tier.
func (f *Facade) Clear(ctx context.Context, tier Tier) error {
	switch tier {
	case TierShortTerm:
		return f.shortTerm.Clear(ctx)
	case TierLongTerm:
		return f.longTerm.Clear(ctx)
	case TierScratchpad:
		return f.scratchpad.Clear(ctx)
	case TierAll:
		if err := f.shortTerm.Clear(ctx); err != nil {
			return err
		}
		if err := f.longTerm.Clear(ctx); err != nil {
			return err
		}
		return f.scratchpad.Clear(ctx)
	default:
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown memory tier %q", tier), nil)
	}
}

// Stats returns the record count per tier.
func (f *Facade) Stats(ctx context.Context) (map[Tier]int, error) {
	out := make(map[Tier]int, 3)

	shortCount, err := f.shortTerm.Count(ctx)
	if err != nil {
		return nil, err
	}
	out[TierShortTerm] = shortCount

	longCount, err := f.longTerm.Count(ctx)
	if err != nil {
		return nil, err
	}
	out[TierLongTerm] = longCount

	padCount, err := f.scratchpad.Count(ctx)
	if err != nil {
		return nil, err
	}
	out[TierScratchpad] = padCount

	return out, nil
}

// joinMetadataValues renders metadata values in key order so recall output
// is deterministic.
func joinMetadataValues(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, fmt.Sprintf("%v", metadata[k]))
	}
	return strings.Join(values, ", ")
}
