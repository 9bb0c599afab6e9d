package model

import "errors"

// Per-unit failure kinds. They never abort a run.
var (
	ErrFit     = errors.New("model fit failed")
	ErrPredict = errors.New("model predict failed")
	ErrTimeout = errors.New("unit timed out")
	ErrPanic   = errors.New("model panicked")
)

// KindOf maps a unit error to its FailureKind.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrPanic):
		return FailurePanic
	case errors.Is(err, ErrPredict):
		return FailurePredict
	default:
		return FailureFit
	}
}
