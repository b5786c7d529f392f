//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kagami/internal/models"
)

// ONNXConfig describes a CLIP-style vision model exported to ONNX.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Dimensions  int
	ImageSize   int
	InputName   string
	OutputName  string
}

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXConfig) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", models.ErrModelFailure)
}

func (e *ONNXEmbedder) Embed(context.Context, []byte) ([]float32, error) {
	return nil, fmt.Errorf("%w: ONNX not available", models.ErrModelFailure)
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Name() string { return "onnx" }

func (e *ONNXEmbedder) Close() error { return nil }
