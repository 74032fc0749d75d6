//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXOptions configures an ONNXEmbedder.
type ONNXOptions struct {
	TextModelPath   string
	VisionModelPath string
	Dimensions      int
	MaxTokens       int
	ImageSize       int
}

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXOptions) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ONNXEmbedder) EmbedText(context.Context, string) ([]float32, error) { return nil, ErrUnavailable }
func (e *ONNXEmbedder) EmbedImage(context.Context, []byte) ([]float32, error) { return nil, ErrUnavailable }
func (e *ONNXEmbedder) Dimensions() int                                       { return 0 }
func (e *ONNXEmbedder) Close() error                                          { return nil }
