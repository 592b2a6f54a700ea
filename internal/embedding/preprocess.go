package embedding

import (
	"image"

	"golang.org/x/image/draw"
)

// CLIPImageSize is the input resolution of the ViT-B/32 CLIP vision encoder.
const CLIPImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PreprocessCLIP resizes the shorter side of img to size, center-crops to
// size x size and returns CHW float32 pixels normalized with the CLIP mean and std.
func PreprocessCLIP(img image.Image, size int) []float32 {
	if size <= 0 {
		size = CLIPImageSize
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return make([]float32, 3*size*size)
	}

	sw, sh := size, size
	if w < h {
		sh = h * size / w
	} else {
		sw = w * size / h
	}
	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	x0 := (sw - size) / 2
	y0 := (sh - size) / 2
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := scaled.PixOffset(x0+x, y0+y)
			p := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(scaled.Pix[i+c]) / 255
				out[c*plane+p] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
