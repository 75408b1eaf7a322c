package test

import (
	"math"
)

// embeddingDims matches the vector column width of the schema.
const embeddingDims = 384

// testVector builds a normalized 384-dimensional vector from sparse axis weights.
func testVector(weights map[int]float32) []float32 {
	v := make([]float32, embeddingDims)
	var sum float64
	for axis, w := range weights {
		v[axis] = w
		sum += float64(w) * float64(w)
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func int32Ptr(v int32) *int32 {
	return &v
}
