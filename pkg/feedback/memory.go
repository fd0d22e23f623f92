// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package feedback

import (
	"context"
	"sync"
	"time"
)

// MemorySink keeps feedback records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns an in-memory feedback sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends a feedback record.
func (s *MemorySink) Record(_ context.Context, rec Record) error {
	rec.Timestamp = normalizeTime(rec.Timestamp)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns filtered feedback records.
func (s *MemorySink) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Outcome != "" && rec.Outcome != filter.Outcome {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Prune drops records older than the cutoff and reports how many went.
func (s *MemorySink) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var pruned int64
	for _, rec := range s.records {
		if rec.Timestamp.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return pruned, nil
}
