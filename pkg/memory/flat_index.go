// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
)

// FlatIndex is an exact nearest-neighbor index over fixed-width vectors.
// Rows are append-only; there is no delete-by-row (callers tombstone via
// their own id mapping and rebuild through compaction). Not safe for
// concurrent use; the owning store serializes access.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// IndexMatch is one nearest-neighbor hit.
type IndexMatch struct {
	Row      int
	Distance float32 // squared L2
}

// NewFlatIndex creates an empty index of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &FlatIndex{dim: dim}
}

// Dimension returns the configured vector width.
func (ix *FlatIndex) Dimension() int { return ix.dim }

// Count returns the number of stored rows, including tombstoned ones.
func (ix *FlatIndex) Count() int { return len(ix.vectors) }

// Add stores a vector and returns its row position. Vectors are silently
// padded or truncated to the index dimension.
func (ix *FlatIndex) Add(vec []float32) int {
	fitted := FitDimension(vec, ix.dim)
	stored := make([]float32, ix.dim)
	copy(stored, fitted)
	ix.vectors = append(ix.vectors, stored)
	return len(ix.vectors) - 1
}

// Vector returns the stored vector at row, or nil when out of range.
func (ix *FlatIndex) Vector(row int) []float32 {
	if row < 0 || row >= len(ix.vectors) {
		return nil
	}
	return ix.vectors[row]
}

// Search returns up to k rows nearest to query by squared L2 distance,
// closest first. Ties resolve to the lower row.
func (ix *FlatIndex) Search(query []float32, k int) []IndexMatch {
	if k <= 0 || len(ix.vectors) == 0 {
		return nil
	}
	q := FitDimension(query, ix.dim)

	matches := make([]IndexMatch, 0, len(ix.vectors))
	for row, vec := range ix.vectors {
		var dist float64
		for i := range vec {
			d := float64(vec[i]) - float64(q[i])
			dist += d * d
		}
		matches = append(matches, IndexMatch{Row: row, Distance: float32(dist)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Reset discards all rows.
func (ix *FlatIndex) Reset() {
	ix.vectors = nil
}

// Save writes the index artifact: a little-endian header (dimension, row
// count) followed by the raw vectors. Writes are not atomic with any
// relational store; readers tolerate drift.
func (ix *FlatIndex) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index artifact: %w", err)
	}
	defer f.Close()

	header := []uint32{uint32(ix.dim), uint32(len(ix.vectors))}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}
	for _, vec := range ix.vectors {
		for _, v := range vec {
			if err := binary.Write(f, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return fmt.Errorf("write index vector: %w", err)
			}
		}
	}
	return nil
}

// LoadFlatIndex reads an index artifact written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index artifact: %w", err)
	}
	defer f.Close()

	var header [2]uint32
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	dim, count := int(header[0]), int(header[1])
	if dim <= 0 {
		return nil, fmt.Errorf("index artifact has invalid dimension %d", dim)
	}

	ix := NewFlatIndex(dim)
	ix.vectors = make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			var bits uint32
			if err := binary.Read(f, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("read index vector %d: %w", i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		ix.vectors = append(ix.vectors, vec)
	}
	return ix, nil
}
