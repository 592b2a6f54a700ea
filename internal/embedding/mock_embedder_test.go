package embedding

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "red sneakers")
	b, _ := e.Embed(ctx, "red sneakers")
	c, _ := e.Embed(ctx, "blue sneakers")
	if len(a) != 16 {
		t.Fatalf("len=%d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should give same embedding")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different text should give different embedding")
	}
	if math.Abs(norm(a)-1) > 1e-5 {
		t.Errorf("norm=%v, want 1", norm(a))
	}
}

func TestMockEmbedder_Images(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	red1, err := e.EmbedImage(ctx, solid(color.RGBA{255, 0, 0, 255}, 32, 32))
	if err != nil {
		t.Fatal(err)
	}
	red2, _ := e.EmbedImage(ctx, solid(color.RGBA{255, 0, 0, 255}, 32, 32))
	black, _ := e.EmbedImage(ctx, solid(color.RGBA{0, 0, 0, 255}, 32, 32))

	for i := range red1 {
		if red1[i] != red2[i] {
			t.Fatal("same image should give same embedding")
		}
	}
	diff := false
	for i := range red1 {
		if red1[i] != black[i] {
			diff = true
		}
	}
	if !diff {
		t.Error("different images should give different embeddings")
	}
	if math.Abs(norm(red1)-1) > 1e-5 {
		t.Errorf("norm=%v, want 1", norm(red1))
	}
}

func TestMockEmbedder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).Embed(ctx, "x"); err == nil {
		t.Error("expected error for canceled context")
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(512)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "red leather running shoe")
	}
}
