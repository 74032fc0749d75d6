package utils

import "math"

// NormalizeL2 scales x in place to unit length and returns the norm it had.
// A zero vector is left as is.
func NormalizeL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return 0
	}
	inv := float32(1 / norm)
	for i := range x {
		x[i] *= inv
	}
	return norm
}
