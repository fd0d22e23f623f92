// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
)

// Scratchpad holds working state for a single plan's lifetime: structured
// key/value notes plus a freeform tagged log. Notes and log clear together.
type Scratchpad struct {
	mu    sync.RWMutex
	notes map[string]any
	log   Backend
}

// NewScratchpad creates a scratchpad over the given log backend. A nil
// backend gets an in-process store.
func NewScratchpad(log Backend) *Scratchpad {
	if log == nil {
		log = NewInMemoryStore()
	}
	return &Scratchpad{
		notes: make(map[string]any),
		log:   log,
	}
}

// AddNote stores a structured working value under key.
func (s *Scratchpad) AddNote(key string, value any) {
	s.mu.Lock()
	s.notes[key] = value
	s.mu.Unlock()
}

// Note returns the value stored under key.
func (s *Scratchpad) Note(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.notes[key]
	return v, ok
}

// Notes returns a copy of all structured notes.
func (s *Scratchpad) Notes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.notes))
	for k, v := range s.notes {
		out[k] = v
	}
	return out
}

// AddEntry appends a freeform entry to the log with the given tag.
func (s *Scratchpad) AddEntry(ctx context.Context, content, tag string) (string, error) {
	if tag == "" {
		tag = "note"
	}
	return s.log.Add(ctx, content, map[string]any{
		"tag":  tag,
		"type": "scratchpad",
	})
}

// Search queries the freeform log.
func (s *Scratchpad) Search(ctx context.Context, query string, topK int) ([]MemoryRecord, error) {
	return s.log.Search(ctx, query, topK)
}

// Clear discards both the structured notes and the freeform log.
func (s *Scratchpad) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.notes = make(map[string]any)
	s.mu.Unlock()
	return s.log.Clear(ctx)
}

// Count returns the number of notes plus log entries.
func (s *Scratchpad) Count(ctx context.Context) (int, error) {
	logCount, err := s.log.Count(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes) + logCount, nil
}
