package similarity

import (
	"fmt"
	"math"
)

// DefaultThreshold is the duplicate cut-off used when none is configured.
const DefaultThreshold = 0.85

// Threshold is the single similarity cut-off of a run. The comparison is
// inclusive, so a threshold of 1.0 still matches identical vectors.
type Threshold struct {
	value  float64
	metric Metric
}

// NewThreshold validates value against the metric's score range.
func NewThreshold(value float64, metric Metric) (Threshold, error) {
	lo, hi, err := metric.Range()
	if err != nil {
		return Threshold{}, err
	}
	if math.IsNaN(value) || value < lo || value > hi {
		return Threshold{}, fmt.Errorf("%w: %v outside [%g, %g] for %s metric", ErrInvalidThreshold, value, lo, hi, metric)
	}
	return Threshold{value: value, metric: metric}, nil
}

// MustThreshold is NewThreshold for constants known to be valid.
func MustThreshold(value float64, metric Metric) Threshold {
	t, err := NewThreshold(value, metric)
	if err != nil {
		panic(err)
	}
	return t
}

// Value returns the configured cut-off.
func (t Threshold) Value() float64 { return t.value }

// Metric returns the metric the threshold was validated for.
func (t Threshold) Metric() Metric { return t.metric }

// Matches reports whether score is a duplicate score.
func (t Threshold) Matches(score float64) bool { return score >= t.value }

func (t Threshold) String() string {
	return fmt.Sprintf("%s>=%.4f", t.metric, t.value)
}
