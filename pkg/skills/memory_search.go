// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"strings"
	"time"

	"github.com/metis-ai/metis/pkg/memory"
)

// MemorySearchSkillName is the registry name of the built-in memory search
// skill. The engine treats its results specially when no plan is active.
const MemorySearchSkillName = "memory_search"

// MemorySearch is the built-in skill that queries the long-term memory
// tier. It never fails on an empty query; it reports the problem in its
// payload so a plan can continue.
type MemorySearch struct{}

// NewMemorySearch creates the built-in memory search skill.
func NewMemorySearch() *MemorySearch {
	return &MemorySearch{}
}

// Name implements Skill.
func (s *MemorySearch) Name() string { return MemorySearchSkillName }

// Version implements Skill.
func (s *MemorySearch) Version() string { return "1.0.0" }

// Description implements Skill.
func (s *MemorySearch) Description() string {
	return "Searches long-term memory for entries relevant to the query."
}

// SLA implements Skill.
func (s *MemorySearch) SLA() SLA {
	return SLA{Timeout: 10 * time.Second, Retries: 1}
}

// Invoke implements Skill. The query comes from params "query", falling
// back to "text". Matches carry the stored text and its similarity score;
// confidence is 0.7 when anything matched and 0.3 otherwise.
func (s *MemorySearch) Invoke(ctx context.Context, in SkillInput, rc *RunContext) (SkillOutput, error) {
	query := stringParam(in.Payload, "query")
	if query == "" {
		query = stringParam(in.Payload, "text")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return NewSkillOutput(map[string]any{
			"error":      "empty query",
			"query":      "",
			"matches":    []any{},
			"confidence": 0.0,
		}), nil
	}

	topK := intParam(in.Payload, "top_k", 5)

	matches := []any{}
	if rc != nil && rc.Memory != nil {
		records, err := rc.Memory.Search(ctx, query, memory.TierLongTerm, topK)
		if err != nil {
			return SkillOutput{}, err
		}
		for _, r := range records {
			matches = append(matches, map[string]any{
				"text":  r.Content,
				"score": float64(r.Score),
			})
		}
	}

	confidence := 0.3
	if len(matches) > 0 {
		confidence = 0.7
	}

	out := NewSkillOutput(map[string]any{
		"query":      query,
		"matches":    matches,
		"confidence": confidence,
	})
	out.SetMetric("matches", float64(len(matches)))
	return out, nil
}

func stringParam(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func intParam(payload map[string]any, key string, def int) int {
	if payload == nil {
		return def
	}
	switch v := payload[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
