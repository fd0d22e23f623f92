// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import "testing"

func TestToolFilterEmptyAdmitsEverything(t *testing.T) {
	f := NewToolFilter(nil, nil)
	for _, name := range []string{"search", "db_query", ""} {
		if !f.Admit(name) {
			t.Fatalf("empty filter rejected %q", name)
		}
	}
}

func TestToolFilterAdmit(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		tool  string
		want  bool
	}{
		{"literal deny", nil, []string{"shell_exec"}, "shell_exec", false},
		{"deny leaves others", nil, []string{"shell_exec"}, "search", true},
		{"glob deny", nil, []string{"db_*"}, "db_query", false},
		{"glob deny misses", nil, []string{"db_*"}, "database", true},
		{"allow admits member", []string{"search", "fetch"}, nil, "fetch", true},
		{"allow rejects outsider", []string{"search", "fetch"}, nil, "shell_exec", false},
		{"allow glob", []string{"read_*"}, nil, "read_file", true},
		{"deny wins over allow", []string{"*"}, []string{"shell_*"}, "shell_exec", false},
		{"blank patterns ignored", []string{" ", ""}, []string{" "}, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewToolFilter(tt.allow, tt.deny)
			if got := f.Admit(tt.tool); got != tt.want {
				t.Fatalf("Admit(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestToolFilterMalformedPatternMatchesLiterally(t *testing.T) {
	// "db_[" is not a valid glob; it should still match a tool literally
	// named db_[ and nothing else.
	f := NewToolFilter(nil, []string{"db_["})
	if f.Admit("db_[") {
		t.Fatal("literal fallback did not deny the exact name")
	}
	if !f.Admit("db_query") {
		t.Fatal("malformed pattern denied an unrelated tool")
	}
}
