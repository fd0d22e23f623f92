// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(StoreConfig{
		DB:        db,
		IndexPath: filepath.Join(dir, "memory.idx"),
		Embedder:  NewHashingEmbedder(64),
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestStoreAddAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Add(ctx, "the capital of France is Paris", map[string]any{"topic": "geography"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := store.Add(ctx, "goroutines communicate over channels", nil); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	records, err := store.Search(ctx, "the capital of France is Paris", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Search() returned %d records, want 1", len(records))
	}
	if records[0].ID != id {
		t.Errorf("Search() top hit = %s, want %s", records[0].ID, id)
	}
	if records[0].Content != "the capital of France is Paris" {
		t.Errorf("Search() content = %q", records[0].Content)
	}
	if got := records[0].Metadata["topic"]; got != "geography" {
		t.Errorf("metadata[topic] = %v, want geography", got)
	}
	if records[0].Score <= 0 {
		t.Errorf("Score = %v, want > 0", records[0].Score)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestStoreDeleteIsLogical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	idA, err := store.Add(ctx, "first record about deployments", nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	idB, err := store.Add(ctx, "second record about rollbacks", nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := store.Delete(ctx, idA); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Relational row and mapping gone, vector still indexed.
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
	if store.IndexCount() != 2 {
		t.Errorf("IndexCount() = %d, want 2", store.IndexCount())
	}

	records, err := store.Search(ctx, "record", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range records {
		if r.ID == idA {
			t.Error("deleted record still returned by Search()")
		}
	}
	found := false
	for _, r := range records {
		if r.ID == idB {
			found = true
		}
	}
	if !found {
		t.Error("live record missing from Search()")
	}

	// Repeat deletion is a no-op.
	if err := store.Delete(ctx, idA); err != nil {
		t.Errorf("repeat Delete() error = %v", err)
	}
}

func TestStoreCompactDropsTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	idA, _ := store.Add(ctx, "keep me one", nil)
	idB, _ := store.Add(ctx, "drop me", nil)
	idC, _ := store.Add(ctx, "keep me two", nil)

	if err := store.Delete(ctx, idB); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.IndexCount() != 3 {
		t.Fatalf("IndexCount() before compact = %d, want 3", store.IndexCount())
	}

	if err := store.Compact(ctx); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	if store.IndexCount() != 2 {
		t.Errorf("IndexCount() after compact = %d, want 2", store.IndexCount())
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after compact = %d, want 2", count)
	}

	records, err := store.Search(ctx, "keep me one", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != idA {
		t.Errorf("Search() after compact top hit = %+v, want id %s", records, idA)
	}
	records, err = store.Search(ctx, "keep me two", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != idC {
		t.Errorf("Search() after compact top hit = %+v, want id %s", records, idC)
	}
}

func TestStoreReopenRestoresState(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "memory.db")
	idxPath := filepath.Join(dir, "memory.idx")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	store, err := NewStore(StoreConfig{DB: db, IndexPath: idxPath, Embedder: NewHashingEmbedder(64)})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	ctx := context.Background()
	id, err := store.Add(ctx, "persistent fact about the moon", map[string]any{"tag": "astro"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close database: %v", err)
	}

	db2, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	t.Cleanup(func() { db2.Close() })

	reopened, err := NewStore(StoreConfig{DB: db2, IndexPath: idxPath, Embedder: NewHashingEmbedder(64)})
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}

	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("Count() after reopen = %d, want 1", count)
	}

	records, err := reopened.Search(ctx, "persistent fact about the moon", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != id {
		t.Errorf("Search() after reopen = %+v, want id %s", records, id)
	}
}

func TestStoreNilEmbedderZeroVector(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(StoreConfig{DB: db})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	ctx := context.Background()
	if _, err := store.Add(ctx, "stored without an embedder", nil); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	records, err := store.Search(ctx, "anything", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Search() returned %d records, want 1", len(records))
	}
	if records[0].Score != 1 {
		t.Errorf("zero-vector Score = %v, want 1", records[0].Score)
	}
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "one", nil)
	store.Add(ctx, "two", nil)

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}
	if store.IndexCount() != 0 {
		t.Errorf("IndexCount() after Clear = %d, want 0", store.IndexCount())
	}
}

func TestNewStoreRequiresDB(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Error("NewStore() without a database should error")
	}
}
