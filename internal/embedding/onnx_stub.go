//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"
)

var errNoCGO = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXTextConfig describes a text encoder exported to ONNX.
type ONNXTextConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	InputNames []string
	OutputName string
	Scheme     TokenScheme
}

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXTextConfig) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }

// ONNXImageEmbedder stub type when built without CGO.
type ONNXImageEmbedder struct{}

// NewONNXImageEmbedder returns an error when built without CGO.
func NewONNXImageEmbedder(_ string, _, _ int) (*ONNXImageEmbedder, error) {
	return nil, errNoCGO
}

func (e *ONNXImageEmbedder) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return nil, errNoCGO
}

func (e *ONNXImageEmbedder) Dimensions() int { return 0 }

func (e *ONNXImageEmbedder) Close() error { return nil }
