// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/metis-ai/metis/pkg/resilience"
)

// DefaultDimension is the embedding width used when none is configured.
const DefaultDimension = 384

// Embedder converts text into a fixed-width vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FitDimension pads a shorter vector with zeros and truncates a longer one
// so every stored vector has exactly dim entries. This is a silent,
// deterministic policy, not an error.
func FitDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

// HashingEmbedder is a deterministic, dependency-free embedder: tokens are
// hashed onto the vector with signed counts and the result is L2-normalized.
// Identical text always maps to the identical vector, which makes it the
// default for local stores and tests.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder. Non-positive dimensions
// fall back to DefaultDimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Name implements Embedder.
func (e *HashingEmbedder) Name() string { return "hashing" }

// Dimension implements Embedder.
func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed implements Embedder.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ZeroEmbedder maps every text to the zero vector. It mirrors running
// without an embedding provider: writes succeed, similarity is meaningless.
type ZeroEmbedder struct {
	Dim int
}

// Name implements Embedder.
func (e ZeroEmbedder) Name() string { return "zero" }

// Dimension implements Embedder.
func (e ZeroEmbedder) Dimension() int {
	if e.Dim <= 0 {
		return DefaultDimension
	}
	return e.Dim
}

// Embed implements Embedder.
func (e ZeroEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.Dimension()), nil
}

// FallbackEmbedder embeds with a primary embedder and degrades to a
// secondary one when it fails, so memory writes survive an unreachable
// embedding service. Vectors from the two embedders live in different
// similarity spaces: a degraded write trades recall quality for
// availability.
type FallbackEmbedder struct {
	primary   Embedder
	secondary Embedder
	logger    *slog.Logger
}

// NewFallbackEmbedder chains two embedders. A nil logger falls back to
// slog.Default.
func NewFallbackEmbedder(primary, secondary Embedder, logger *slog.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEmbedder{primary: primary, secondary: secondary, logger: logger}
}

// Name implements Embedder.
func (e *FallbackEmbedder) Name() string {
	return e.primary.Name() + "+" + e.secondary.Name()
}

// Dimension implements Embedder. The primary's width wins; the store fits
// secondary vectors to it.
func (e *FallbackEmbedder) Dimension() int { return e.primary.Dimension() }

// Embed implements Embedder. Cancellation is never degraded: a canceled
// context surfaces the primary error.
func (e *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.WithFallback(ctx, func(ctx context.Context) ([]float32, error) {
		return e.primary.Embed(ctx, text)
	}, resilience.FallbackFunc[[]float32](func(ctx context.Context, primaryErr error) ([]float32, error) {
		e.logger.Warn("primary embedder failed, degrading to secondary",
			"primary", e.primary.Name(), "secondary", e.secondary.Name(), "error", primaryErr)
		vec, err := e.secondary.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return FitDimension(vec, e.Dimension()), nil
	}))
}
