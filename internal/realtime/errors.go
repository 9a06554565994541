package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/solarcast/internal/inference"
	"github.com/rewired-gh/solarcast/internal/store"
)

// Stage names the step of a cycle that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageInfer   Stage = "infer"
	StagePublish Stage = "publish"
)

// Kind is the error class that decides how a failure is reported.
// All kinds are retried on the next cycle.
type Kind string

const (
	KindTransient Kind = "transient"
	KindSchema    Kind = "schema"
	KindUnknown   Kind = "unknown"
)

// CycleError is the error returned by RunCycle.
type CycleError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func newCycleError(stage Stage, err error) *CycleError {
	return &CycleError{Stage: stage, Kind: Classify(err), Err: err}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, inference.ErrSchemaMismatch), errors.Is(err, inference.ErrNotFitted),
		errors.Is(err, store.ErrMalformed):
		return KindSchema
	default:
		return KindUnknown
	}
}
