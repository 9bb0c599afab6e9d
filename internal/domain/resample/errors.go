package resample

import "errors"

// Sentinel error kinds for split generation. Both are fatal to a run.
var (
	ErrInvalidConfig   = errors.New("invalid resampling configuration")
	ErrSplitGeneration = errors.New("split generation failed")
)
