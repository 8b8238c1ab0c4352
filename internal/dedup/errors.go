package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/DreamCats/doubles/internal/cluster"
	"github.com/DreamCats/doubles/internal/pairwise"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/similarity"
)

// ErrorKind classifies why a run failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindDimensionMismatch
	KindDegenerateVector
	KindInvalidThreshold
	KindDuplicateRecordID
	KindUnknownRecordReference
	KindCancelled
	// KindInternal covers everything else, such as embedder failures.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	case KindDegenerateVector:
		return "DegenerateVector"
	case KindInvalidThreshold:
		return "InvalidThreshold"
	case KindDuplicateRecordID:
		return "DuplicateRecordId"
	case KindUnknownRecordReference:
		return "UnknownRecordReference"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Internal"
	}
}

// Kind maps an error returned by the engine to its kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, pairwise.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, similarity.ErrInvalidThreshold):
		return KindInvalidThreshold
	case errors.Is(err, record.ErrDuplicateRecordID):
		return KindDuplicateRecordID
	case errors.Is(err, similarity.ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, similarity.ErrDegenerateVector):
		return KindDegenerateVector
	case errors.Is(err, cluster.ErrUnknownRecordReference):
		return KindUnknownRecordReference
	default:
		return KindInternal
	}
}

// RecordError attaches the offending record id to a vector error.
type RecordError struct {
	ID  record.ID
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %q: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
