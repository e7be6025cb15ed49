// Package distance provides the metric kernels used by the vector indexes.
//
// All kernels are pure functions over equal-length float32 slices. The
// compiler auto-vectorizes the unrolled loops on amd64/arm64; correctness
// never depends on it.
package distance

import (
	"fmt"
	"math"
	"slices"
)

// ErrDimensionMismatch indicates two vectors of different lengths were
// handed to a kernel. This is a caller contract violation.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	return dot(a, b), nil
}

// SquaredL2 calculates the squared Euclidean distance between two vectors.
func SquaredL2(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	return squaredL2(a, b), nil
}

// Euclidean calculates the L2 distance between two vectors.
func Euclidean(a, b []float32) (float32, error) {
	d, err := SquaredL2(a, b)
	if err != nil {
		return 0, err
	}
	return float32(math.Sqrt(float64(d))), nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns 0 if either vector has zero norm.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	dp := dot(a, b)
	na := Magnitude(a)
	nb := Magnitude(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dp / (na * nb), nil
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Loops are unrolled 4-wide to keep the hot path friendly to SIMD codegen.

func dot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i <= n-4; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	s := s0 + s1 + s2 + s3
	for ; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

func squaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i <= n-4; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	s := s0 + s1 + s2 + s3
	for ; i < n; i++ {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
