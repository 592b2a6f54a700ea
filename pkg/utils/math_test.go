package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	tests := []struct {
		name     string
		in       []float32
		want     []float32
		wantNorm float64
	}{
		{"3-4-5", []float32{3, 4}, []float32{0.6, 0.8}, 5},
		{"already unit", []float32{0, 1, 0}, []float32{0, 1, 0}, 1},
		{"negative", []float32{-2, 0}, []float32{-1, 0}, 2},
		{"zero vector unchanged", []float32{0, 0}, []float32{0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := append([]float32(nil), tt.in...)
			norm := NormalizeL2(x)
			if math.Abs(norm-tt.wantNorm) > 1e-6 {
				t.Errorf("norm = %f, want %f", norm, tt.wantNorm)
			}
			for i := range tt.want {
				if math.Abs(float64(x[i]-tt.want[i])) > 1e-6 {
					t.Errorf("x[%d] = %f, want %f", i, x[i], tt.want[i])
				}
			}
		})
	}
}
