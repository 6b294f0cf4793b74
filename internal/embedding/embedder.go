// Package embedding provides the Embedder capability and a deterministic
// reference implementation, plus an LRU cache wrapper for expensive encoders.
package embedding

import "context"

// Embedder maps text to a fixed-dimension, L2-normalized vector. Model
// loading and tokenization are the implementation's concern; the core only
// consumes this interface.
type Embedder interface {
	// Encode returns the L2-normalized embedding of text. encode("") returns
	// the zero vector of length Dimension().
	Encode(ctx context.Context, text string) ([]float32, error)
	// EncodeBatch encodes each text independently, preserving order.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the fixed output vector length for this embedder.
	Dimension() int
	// Close releases any resources (model handles, native libraries) held by the embedder.
	Close() error
}
