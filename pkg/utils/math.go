package utils

import "math"

// normEpsilon bounds the divisor for near-zero vectors.
const normEpsilon = 1e-12

// NormalizeL2 scales x in place to unit L2 norm and returns the norm it had.
// A zero vector is left unchanged.
func NormalizeL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return 0
	}
	scale := 1 / math.Max(norm, normEpsilon)
	for i := range x {
		x[i] = float32(float64(x[i]) * scale)
	}
	return norm
}
