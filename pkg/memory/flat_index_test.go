// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"path/filepath"
	"testing"
)

func TestFlatIndexSearchOrdersByDistance(t *testing.T) {
	ix := NewFlatIndex(2)
	ix.Add([]float32{0, 0}) // row 0
	ix.Add([]float32{1, 0}) // row 1
	ix.Add([]float32{3, 0}) // row 2

	matches := ix.Search([]float32{0.9, 0}, 3)
	if len(matches) != 3 {
		t.Fatalf("Search() returned %d matches, want 3", len(matches))
	}

	wantOrder := []int{1, 0, 2}
	for i, want := range wantOrder {
		if matches[i].Row != want {
			t.Errorf("matches[%d].Row = %d, want %d", i, matches[i].Row, want)
		}
	}
	if matches[0].Distance >= matches[1].Distance {
		t.Errorf("distances not ascending: %v then %v", matches[0].Distance, matches[1].Distance)
	}
}

func TestFlatIndexSearchCapsAtK(t *testing.T) {
	ix := NewFlatIndex(2)
	for i := 0; i < 5; i++ {
		ix.Add([]float32{float32(i), 0})
	}

	matches := ix.Search([]float32{0, 0}, 2)
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
	if matches[0].Row != 0 || matches[1].Row != 1 {
		t.Errorf("Search() rows = %d, %d, want 0, 1", matches[0].Row, matches[1].Row)
	}
}

func TestFlatIndexSearchEmpty(t *testing.T) {
	ix := NewFlatIndex(4)
	if matches := ix.Search([]float32{1, 2, 3, 4}, 3); matches != nil {
		t.Errorf("Search() on empty index = %v, want nil", matches)
	}
	ix.Add([]float32{1, 0, 0, 0})
	if matches := ix.Search([]float32{1, 0, 0, 0}, 0); matches != nil {
		t.Errorf("Search() with k=0 = %v, want nil", matches)
	}
}

func TestFlatIndexFitsVectorWidth(t *testing.T) {
	ix := NewFlatIndex(4)

	row := ix.Add([]float32{1, 2}) // shorter, padded
	vec := ix.Vector(row)
	if len(vec) != 4 {
		t.Fatalf("Vector() length = %d, want 4", len(vec))
	}
	if vec[2] != 0 || vec[3] != 0 {
		t.Errorf("padding not zero: %v", vec)
	}

	row = ix.Add([]float32{1, 2, 3, 4, 5, 6}) // longer, truncated
	vec = ix.Vector(row)
	if len(vec) != 4 || vec[3] != 4 {
		t.Errorf("truncated vector = %v, want [1 2 3 4]", vec)
	}
}

func TestFlatIndexVectorOutOfRange(t *testing.T) {
	ix := NewFlatIndex(2)
	ix.Add([]float32{1, 1})

	if ix.Vector(-1) != nil {
		t.Error("Vector(-1) should be nil")
	}
	if ix.Vector(1) != nil {
		t.Error("Vector(1) past end should be nil")
	}
}

func TestFlatIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")

	ix := NewFlatIndex(3)
	ix.Add([]float32{1, 2, 3})
	ix.Add([]float32{-0.5, 0, 4.25})

	if err := ix.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadFlatIndex(path)
	if err != nil {
		t.Fatalf("LoadFlatIndex() error = %v", err)
	}
	if loaded.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3", loaded.Dimension())
	}
	if loaded.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", loaded.Count())
	}

	want := []float32{-0.5, 0, 4.25}
	got := loaded.Vector(1)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Vector(1)[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadFlatIndexMissingFile(t *testing.T) {
	if _, err := LoadFlatIndex(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("LoadFlatIndex() on missing file should error")
	}
}
