// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an unbounded in-process Backend with keyword matching,
// ordered by recency. It backs the short-term tier and the scratchpad log,
// and serves as the long-term fallback when no persistent store is wired.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []MemoryRecord
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add implements Backend.
func (s *InMemoryStore) Add(_ context.Context, content string, metadata map[string]any) (string, error) {
	record := MemoryRecord{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  cloneMetadata(metadata),
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()

	return record.ID, nil
}

// Search implements Backend. A record matches when the lowercased query is a
// substring of its content, or any whitespace-split query word appears in
// the content. Results are ordered most recent first.
func (s *InMemoryStore) Search(_ context.Context, query string, topK int) ([]MemoryRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)

	s.mu.RLock()
	var matches []MemoryRecord
	for _, record := range s.records {
		if keywordMatch(strings.ToLower(record.Content), queryLower, words) {
			matches = append(matches, record)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Clear implements Backend.
func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}

// Count implements Backend.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func keywordMatch(contentLower, queryLower string, words []string) bool {
	if queryLower == "" {
		return false
	}
	if strings.Contains(contentLower, queryLower) {
		return true
	}
	for _, w := range words {
		if strings.Contains(contentLower, w) {
			return true
		}
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
