package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		d, err := Dot([]float32{1, 2, 3}, []float32{2, 3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 20.0, d, 1e-6)
	})

	t.Run("Orthogonal", func(t *testing.T) {
		d, err := Dot([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, d, 1e-6)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := Dot([]float32{1, 2, 3}, []float32{1, 2})
		require.Error(t, err)
		assert.IsType(t, &ErrDimensionMismatch{}, err)
	})

	t.Run("LongVector", func(t *testing.T) {
		// Exercises both the unrolled loop and the remainder.
		a := make([]float32, 131)
		b := make([]float32, 131)
		for i := range a {
			a[i] = 1
			b[i] = 2
		}
		d, err := Dot(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 262.0, d, 1e-4)
	})
}

func TestEuclidean(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		d, err := Euclidean([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, d, 1e-6)
	})

	t.Run("Triangle", func(t *testing.T) {
		d, err := Euclidean([]float32{0, 0}, []float32{3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 5.0, d, 1e-6)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := Euclidean([]float32{0, 0}, []float32{3, 4, 5})
		require.Error(t, err)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-6)
	})

	t.Run("Orthogonal", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, s, 1e-6)
	})

	t.Run("Opposite", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.InDelta(t, -1.0, s, 1e-6)
	})

	t.Run("ZeroNorm", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.Zero(t, s)
	})
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, Magnitude(v), 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		assert.False(t, NormalizeL2InPlace([]float32{0, 0, 0}))
		_, ok := NormalizeL2Copy([]float32{0, 0})
		assert.False(t, ok)
	})

	t.Run("CopyDoesNotMutate", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src)
		assert.NotEqual(t, src, dst)
	})
}

func TestMetric(t *testing.T) {
	t.Run("Ordering", func(t *testing.T) {
		assert.True(t, MetricL2.Ascending())
		assert.False(t, MetricCosine.Ascending())
		assert.False(t, MetricDotProduct.Ascending())
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "Cosine", MetricCosine.String())
		assert.Equal(t, "L2", MetricL2.String())
		assert.Equal(t, "DotProduct", MetricDotProduct.String())
	})

	t.Run("Provider", func(t *testing.T) {
		for _, m := range []Metric{MetricCosine, MetricL2, MetricDotProduct} {
			fn, err := Provider(m)
			require.NoError(t, err)
			s, err := fn([]float32{1, 0}, []float32{1, 0})
			require.NoError(t, err)
			assert.False(t, math.IsNaN(float64(s)))
		}

		_, err := Provider(Metric(99))
		assert.Error(t, err)
	})
}
