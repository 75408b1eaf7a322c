package ai

import (
	"fmt"
	"math"
)

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot returns the dot product of a and b. Extra trailing elements are ignored.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// FoldMean folds sample into a running mean computed over count samples:
//
//	mean'[i] = (mean[i]*count + sample[i]) / (count+1)
//
// A mean with no counted samples, or counted samples with no mean, is an error.
func FoldMean(mean []float32, count int, sample []float32) ([]float32, error) {
	if count < 0 {
		return nil, fmt.Errorf("negative sample count: %d", count)
	}
	if (count == 0) != (len(mean) == 0) {
		return nil, fmt.Errorf("running mean of %d samples has %d dimensions", count, len(mean))
	}
	if count == 0 {
		out := make([]float32, len(sample))
		copy(out, sample)
		return out, nil
	}
	if len(mean) != len(sample) {
		return nil, fmt.Errorf("%w: running mean has %d dimensions, sample has %d", ErrDimensionMismatch, len(mean), len(sample))
	}

	c := float64(count)
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = float32((float64(mean[i])*c + float64(sample[i])) / (c + 1))
	}
	return out, nil
}
