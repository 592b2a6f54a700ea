package embedding

import (
	"context"
	"image"
	"math"

	"github.com/hyperjump/mirip/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Text
// vectors derive from a hash of the text; image vectors derive from the mean
// color of a coarse grid over the image. The same input always yields the same vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.fromSeed(HashString(text)), nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// EmbedImage returns a deterministic embedding from a 4x4 grid of mean colors.
func (e *MockEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	const grid = 4
	seed := 17
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x0 := b.Min.X + gx*b.Dx()/grid
			x1 := b.Min.X + (gx+1)*b.Dx()/grid
			y0 := b.Min.Y + gy*b.Dy()/grid
			y1 := b.Min.Y + (gy+1)*b.Dy()/grid
			var sum, n uint64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += uint64(r>>8) + uint64(g>>8) + uint64(bl>>8)
					n++
				}
			}
			if n > 0 {
				seed = 31*seed + int(sum/n)
			}
		}
	}
	if seed < 0 {
		seed = -seed
	}
	return e.fromSeed(seed), nil
}

func (e *MockEmbedder) fromSeed(h int) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
