package embedding

import (
	"context"
	"math"
)

// DeterministicEmbedder is a reference Embedder with no model dependency: it
// derives a fixed-dimension vector from a simple hash of the input text, so
// that the same text always encodes to the same vector and distinct texts
// scatter across the unit sphere. It is not semantically meaningful on its
// own; production deployments plug in a real model behind the same interface.
type DeterministicEmbedder struct {
	dimension int
}

// NewDeterministicEmbedder returns an embedder producing vectors of the given
// dimension (384 if dimension <= 0).
func NewDeterministicEmbedder(dimension int) *DeterministicEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &DeterministicEmbedder{dimension: dimension}
}

// Encode returns a deterministic, L2-normalized embedding. An empty string
// returns the zero vector, per the Embedder contract.
func (e *DeterministicEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	if text == "" {
		return vec, nil
	}
	h := hashString(text)
	for i := 0; i < e.dimension; i++ {
		vec[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v * v)
	}
	if sumSq > 0 {
		inv := float32(1.0 / math.Sqrt(sumSq))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EncodeBatch calls Encode for each text in order.
func (e *DeterministicEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the embedder's fixed output vector length.
func (e *DeterministicEmbedder) Dimension() int { return e.dimension }

// Close is a no-op: DeterministicEmbedder holds no external resources.
func (e *DeterministicEmbedder) Close() error { return nil }

// hashString returns a deterministic, non-negative hash of s for use as a
// vector seed.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
