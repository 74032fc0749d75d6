package vector

// InnerProduct is the score both index types rank by. Stored vectors are unit length,
// so it equals cosine similarity. Mismatched lengths score 0.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i, v := range a {
		dot += float64(v) * float64(b[i])
	}
	return dot
}
