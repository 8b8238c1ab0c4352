package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDegenerateVector is returned for a vector whose cosine is undefined
	// (zero magnitude or no components).
	ErrDegenerateVector = errors.New("degenerate vector")

	// ErrInvalidThreshold is returned for a threshold outside the metric's range.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrUnsupportedMetric is returned for an unknown metric.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")
)

// DimensionMismatchError carries the two lengths involved.
// Index is the position of the offending vector in a run, or -1.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	Index    int
}

func (e *DimensionMismatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("dimension mismatch at vector %d: expected %d, got %d", e.Index, e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// DegenerateVectorError names the vector that has no direction.
// Index is the position of the vector in a run, or -1.
type DegenerateVectorError struct {
	Index int
}

func (e *DegenerateVectorError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("degenerate vector at %d: zero or non-finite magnitude", e.Index)
	}
	return "degenerate vector: zero or non-finite magnitude"
}

func (e *DegenerateVectorError) Is(target error) bool { return target == ErrDegenerateVector }
