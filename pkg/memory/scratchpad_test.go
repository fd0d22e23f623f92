// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
)

func TestScratchpadNotes(t *testing.T) {
	pad := NewScratchpad(nil)

	pad.AddNote("step", 3)
	pad.AddNote("target", "api-gateway")

	v, ok := pad.Note("step")
	if !ok || v != 3 {
		t.Errorf("Note(step) = %v, %v, want 3, true", v, ok)
	}
	if _, ok := pad.Note("missing"); ok {
		t.Error("Note(missing) should not be found")
	}

	notes := pad.Notes()
	if len(notes) != 2 {
		t.Fatalf("Notes() returned %d entries, want 2", len(notes))
	}
	notes["step"] = 99
	if v, _ := pad.Note("step"); v != 3 {
		t.Error("mutating Notes() copy leaked into scratchpad")
	}
}

func TestScratchpadEntriesTagged(t *testing.T) {
	pad := NewScratchpad(nil)
	ctx := context.Background()

	if _, err := pad.AddEntry(ctx, "checked the cache first", "strategy"); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if _, err := pad.AddEntry(ctx, "untagged observation", ""); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	records, err := pad.Search(ctx, "cache", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Search() returned %d records, want 1", len(records))
	}
	if got := records[0].Metadata["tag"]; got != "strategy" {
		t.Errorf("metadata[tag] = %v, want strategy", got)
	}
	if got := records[0].Metadata["type"]; got != "scratchpad" {
		t.Errorf("metadata[type] = %v, want scratchpad", got)
	}

	records, err = pad.Search(ctx, "untagged", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Search() returned %d records, want 1", len(records))
	}
	if got := records[0].Metadata["tag"]; got != "note" {
		t.Errorf("default tag = %v, want note", got)
	}
}

func TestScratchpadClearAndCount(t *testing.T) {
	pad := NewScratchpad(nil)
	ctx := context.Background()

	pad.AddNote("key", "value")
	pad.AddEntry(ctx, "log line", "")

	count, err := pad.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2 (notes + log)", count)
	}

	if err := pad.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, _ = pad.Count(ctx)
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}
	if len(pad.Notes()) != 0 {
		t.Error("Notes() not empty after Clear")
	}
}
