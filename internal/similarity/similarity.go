// Package similarity scores pairs of embedding vectors and decides whether a
// pair is a duplicate under a single run-wide threshold.
//
// The only metric is cosine similarity: the dot product of two vectors
// divided by the product of their magnitudes. Scores are accumulated in
// float64 and clamped to [-1, 1]. A vector with zero magnitude has no
// direction, so scoring it fails with ErrDegenerateVector instead of
// producing NaN.
package similarity

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the similarity function of a run.
type Metric int

const (
	MetricCosine Metric = iota
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Range returns the closed interval of scores the metric can produce.
func (m Metric) Range() (lo, hi float64, err error) {
	switch m {
	case MetricCosine:
		return -1, 1, nil
	default:
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedMetric, m)
	}
}

// ParseMetric maps a config value to a Metric. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, s)
	}
}

// Score returns the cosine similarity of a and b.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b), Index: -1}
	}
	na := squaredNorm(a)
	if na == 0 {
		return 0, &DegenerateVectorError{Index: -1}
	}
	nb := squaredNorm(b)
	if nb == 0 {
		return 0, &DegenerateVectorError{Index: -1}
	}
	return cosine(dot(a, b), na, nb), nil
}

// IsDuplicatePair reports whether a and b score at or above the threshold.
func IsDuplicatePair(a, b []float32, threshold Threshold) (bool, error) {
	s, err := Score(a, b)
	if err != nil {
		return false, err
	}
	return threshold.Matches(s), nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func squaredNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0
	}
	return sum
}

// cosine is shared by Score and Scorer so both produce identical bits.
// sqrt(n*n) == n for binary floats, which keeps self-similarity at exactly 1.
func cosine(d, na, nb float64) float64 {
	s := d / math.Sqrt(na*nb)
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
