package similarity

import "fmt"

// Scorer scores pairs of vectors from one run by position. The metric is
// resolved once in NewScorer; Score itself has no metric dispatch.
type Scorer struct {
	metric  Metric
	dim     int
	vectors [][]float32
	norms   []float64
}

// NewScorer checks that every vector has the same dimensionality and a
// usable magnitude, and pre-computes squared norms. Errors carry the index
// of the first offending vector.
func NewScorer(metric Metric, vectors [][]float32) (*Scorer, error) {
	if metric != MetricCosine {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMetric, metric)
	}
	s := &Scorer{
		metric:  metric,
		vectors: vectors,
		norms:   make([]float64, len(vectors)),
	}
	if len(vectors) == 0 {
		return s, nil
	}
	s.dim = len(vectors[0])
	for i, v := range vectors {
		if len(v) != s.dim {
			return nil, &DimensionMismatchError{Expected: s.dim, Actual: len(v), Index: i}
		}
		n := squaredNorm(v)
		if n == 0 {
			return nil, &DegenerateVectorError{Index: i}
		}
		s.norms[i] = n
	}
	return s, nil
}

// Len returns the number of vectors.
func (s *Scorer) Len() int { return len(s.vectors) }

// Dimensions returns the shared vector length.
func (s *Scorer) Dimensions() int { return s.dim }

// Metric returns the metric the scorer was built for.
func (s *Scorer) Metric() Metric { return s.metric }

// Vector returns the i-th vector. Callers must not modify it.
func (s *Scorer) Vector(i int) []float32 { return s.vectors[i] }

// Score returns the similarity of vectors i and j. It is bit-identical to
// Score(vectors[i], vectors[j]).
func (s *Scorer) Score(i, j int) float64 {
	return cosine(dot(s.vectors[i], s.vectors[j]), s.norms[i], s.norms[j])
}
