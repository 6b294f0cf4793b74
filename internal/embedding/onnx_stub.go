//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("onnx embedder requires cgo; rebuild with CGO_ENABLED=1 and onnxruntime available")

// ONNXEmbedder stub for builds without CGO; see onnx.go for the real implementation.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

// Encode always fails when built without CGO.
func (e *ONNXEmbedder) Encode(context.Context, string) ([]float32, error) { return nil, errNoCGO }

// EncodeBatch always fails when built without CGO.
func (e *ONNXEmbedder) EncodeBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

// Dimension returns 0: the stub has no model.
func (e *ONNXEmbedder) Dimension() int { return 0 }

// Close is a no-op.
func (e *ONNXEmbedder) Close() error { return nil }
