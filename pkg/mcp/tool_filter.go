// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"path"
	"strings"
)

// ToolFilter decides which advertised tools a server connection may expose
// as skills. Patterns are path.Match globs; a malformed pattern falls back
// to literal comparison. Deny patterns win over allow patterns, and an
// empty allow list admits every tool not denied.
type ToolFilter struct {
	allow []string
	deny  []string
}

// NewToolFilter builds a filter from allow and deny pattern lists. Blank
// entries are dropped; two empty lists admit everything.
func NewToolFilter(allow, deny []string) *ToolFilter {
	return &ToolFilter{
		allow: cleanPatterns(allow),
		deny:  cleanPatterns(deny),
	}
}

// Admit reports whether a tool name passes the filter.
func (f *ToolFilter) Admit(name string) bool {
	if matchesAny(f.deny, name) {
		return false
	}
	if len(f.allow) > 0 && !matchesAny(f.allow, name) {
		return false
	}
	return true
}

func cleanPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
		if p == name {
			return true
		}
	}
	return false
}
