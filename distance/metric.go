package distance

import "fmt"

// Metric represents the distance metric fixed per collection at creation.
type Metric int

const (
	MetricCosine Metric = iota
	MetricL2
	MetricDotProduct
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricL2:
		return "L2"
	case MetricDotProduct:
		return "DotProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricL2, MetricDotProduct:
		return true
	default:
		return false
	}
}

// Ascending reports the result ordering convention: true means lower scores
// rank first (L2), false means higher scores rank first (Cosine/DotProduct).
func (m Metric) Ascending() bool {
	return m == MetricL2
}

// Func is a function type for score calculation between two vectors.
type Func func(a, b []float32) (float32, error)

// Provider returns the score function for the given metric, following the
// public convention (L2 distance, cosine similarity, dot product).
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return CosineSimilarity, nil
	case MetricL2:
		return Euclidean, nil
	case MetricDotProduct:
		return Dot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
