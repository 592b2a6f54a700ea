//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/mirip/pkg/utils"
)

// ONNXTextConfig describes a text encoder exported to ONNX.
type ONNXTextConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	// InputNames lists the model inputs in order: input_ids, attention_mask and optionally token_type_ids.
	InputNames []string
	OutputName string
	Scheme     TokenScheme
}

// ONNXEmbedder uses ONNX Runtime to produce text embeddings. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputs       []*ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEmbedder creates an ONNX text embedder. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(cfg ONNXTextConfig) (*ONNXEmbedder, error) {
	if err := initONNX(); err != nil {
		return nil, err
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "text_embeds"
	}

	tokenizer := &SimpleTokenizer{Scheme: cfg.Scheme}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", cfg.MaxTokens)
	data := [][]int64{inputIDs, attentionMask, tokenTypeIDs}
	if len(cfg.InputNames) > len(data) {
		return nil, fmt.Errorf("unsupported number of text model inputs: %d", len(cfg.InputNames))
	}

	e := &ONNXEmbedder{
		dimensions: cfg.Dimensions,
		maxTokens:  len(inputIDs),
		tokenizer:  tokenizer,
	}
	for i := range cfg.InputNames {
		t, err := ort.NewTensor(ort.NewShape(1, int64(e.maxTokens)), data[i])
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create %s tensor: %w", cfg.InputNames[i], err)
		}
		e.inputs = append(e.inputs, t)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.outputTensor = outputTensor

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		cfg.InputNames,
		[]string{cfg.OutputName},
		inputs,
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

// Embed returns the L2-normalized embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)
	data := [][]int64{inputIDs, attentionMask, tokenTypeIDs}
	for i, t := range e.inputs {
		copy(t.GetData(), data[i])
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData())
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}

// ONNXImageEmbedder runs a CLIP vision encoder exported to ONNX.
// The model takes pixel_values [1,3,size,size] and returns image_embeds [1,dim].
type ONNXImageEmbedder struct {
	session      *ort.AdvancedSession
	dimensions   int
	size         int
	pixelTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXImageEmbedder loads the vision model at modelPath.
func NewONNXImageEmbedder(modelPath string, dimensions, size int) (*ONNXImageEmbedder, error) {
	if err := initONNX(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = CLIPImageSize
	}
	pixelTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = pixelTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{pixelTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		_ = pixelTensor.Destroy()
		_ = outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXImageEmbedder{
		session:      session,
		dimensions:   dimensions,
		size:         size,
		pixelTensor:  pixelTensor,
		outputTensor: outputTensor,
	}, nil
}

// EmbedImage returns the L2-normalized embedding for img.
func (e *ONNXImageEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels := PreprocessCLIP(img, e.size)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData())
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXImageEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXImageEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}

var (
	onnxOnce sync.Once
	onnxErr  error
)

func initONNX() error {
	onnxOnce.Do(func() {
		if err := ort.InitializeEnvironment(); err != nil {
			onnxErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return onnxErr
}
