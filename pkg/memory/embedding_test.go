// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	first, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(first) != 64 {
		t.Fatalf("Embed() length = %d, want 64", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Embed() not deterministic at index %d: %v != %v", i, first[i], second[i])
		}
	}

	other, err := e.Embed(ctx, "a completely different sentence")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

func TestHashingEmbedderNormalized(t *testing.T) {
	e := NewHashingEmbedder(128)

	vec, err := e.Embed(context.Background(), "normalize me please")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector norm² = %f, want 1", norm)
	}
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	e := NewHashingEmbedder(32)

	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("empty text produced non-zero component at %d: %v", i, v)
		}
	}
}

func TestHashingEmbedderDefaultDimension(t *testing.T) {
	e := NewHashingEmbedder(0)
	if e.Dimension() != DefaultDimension {
		t.Errorf("Dimension() = %d, want %d", e.Dimension(), DefaultDimension)
	}
}

func TestFitDimension(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		dim  int
		want []float32
	}{
		{
			name: "exact width unchanged",
			vec:  []float32{1, 2, 3},
			dim:  3,
			want: []float32{1, 2, 3},
		},
		{
			name: "short vector zero padded",
			vec:  []float32{1, 2},
			dim:  4,
			want: []float32{1, 2, 0, 0},
		},
		{
			name: "long vector truncated",
			vec:  []float32{1, 2, 3, 4, 5},
			dim:  2,
			want: []float32{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitDimension(tt.vec, tt.dim)
			if len(got) != len(tt.want) {
				t.Fatalf("FitDimension() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FitDimension()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestZeroEmbedder(t *testing.T) {
	e := ZeroEmbedder{}
	if e.Dimension() != DefaultDimension {
		t.Errorf("Dimension() = %d, want %d", e.Dimension(), DefaultDimension)
	}

	vec, err := e.Embed(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != DefaultDimension {
		t.Fatalf("Embed() length = %d, want %d", len(vec), DefaultDimension)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("ZeroEmbedder produced non-zero component at %d: %v", i, v)
		}
	}
}

// brokenEmbedder fails every call, standing in for an unreachable
// embedding service.
type brokenEmbedder struct {
	dim   int
	calls int
}

func (e *brokenEmbedder) Name() string    { return "broken" }
func (e *brokenEmbedder) Dimension() int  { return e.dim }
func (e *brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return nil, stderrors.New("embedding service unreachable")
}

func TestFallbackEmbedderPrimaryWins(t *testing.T) {
	primary := NewHashingEmbedder(32)
	e := NewFallbackEmbedder(primary, ZeroEmbedder{Dim: 32}, nil)

	vec, err := e.Embed(context.Background(), "all is well")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want, _ := primary.Embed(context.Background(), "all is well")
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("Embed() diverged from primary at %d: %v != %v", i, vec[i], want[i])
		}
	}
}

func TestFallbackEmbedderDegrades(t *testing.T) {
	broken := &brokenEmbedder{dim: 16}
	e := NewFallbackEmbedder(broken, NewHashingEmbedder(16), nil)

	vec, err := e.Embed(context.Background(), "still standing")
	if err != nil {
		t.Fatalf("Embed() error = %v, want degraded success", err)
	}
	if len(vec) != 16 {
		t.Fatalf("Embed() length = %d, want 16", len(vec))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		t.Error("degraded vector is zero, secondary embedder did not run")
	}
}

func TestFallbackEmbedderFitsSecondaryWidth(t *testing.T) {
	// Secondary wider than primary: the fallback vector is cut to the
	// primary's dimension, matching what the store will index.
	e := NewFallbackEmbedder(&brokenEmbedder{dim: 8}, NewHashingEmbedder(64), nil)

	vec, err := e.Embed(context.Background(), "width mismatch")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("Embed() length = %d, want the primary width 8", len(vec))
	}
	if e.Dimension() != 8 {
		t.Errorf("Dimension() = %d, want 8", e.Dimension())
	}
}

func TestFallbackEmbedderBothFail(t *testing.T) {
	e := NewFallbackEmbedder(&brokenEmbedder{dim: 8}, &brokenEmbedder{dim: 8}, nil)

	if _, err := e.Embed(context.Background(), "no way out"); err == nil {
		t.Fatal("Embed() succeeded with both embedders broken")
	}
}

func TestFallbackEmbedderHonorsCancellation(t *testing.T) {
	broken := &brokenEmbedder{dim: 8}
	secondary := &brokenEmbedder{dim: 8}
	e := NewFallbackEmbedder(broken, secondary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Embed(ctx, "too late"); err == nil {
		t.Fatal("Embed() succeeded under a canceled context")
	}
	if secondary.calls != 0 {
		t.Error("secondary embedder ran after cancellation")
	}
}
