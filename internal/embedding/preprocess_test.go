package embedding

import (
	"image/color"
	"math"
	"testing"
)

func TestPreprocessCLIP(t *testing.T) {
	img := solid(color.RGBA{255, 255, 255, 255}, 300, 200)
	out := PreprocessCLIP(img, 32)
	if len(out) != 3*32*32 {
		t.Fatalf("len=%d, want %d", len(out), 3*32*32)
	}
	plane := 32 * 32
	for c := 0; c < 3; c++ {
		want := (1 - clipMean[c]) / clipStd[c]
		got := out[c*plane+plane/2]
		if math.Abs(float64(got-want)) > 1e-3 {
			t.Errorf("channel %d: got %v, want %v", c, got, want)
		}
	}
}

func TestPreprocessCLIP_DefaultSize(t *testing.T) {
	out := PreprocessCLIP(solid(color.Black, 10, 10), 0)
	if len(out) != 3*CLIPImageSize*CLIPImageSize {
		t.Errorf("len=%d", len(out))
	}
}
