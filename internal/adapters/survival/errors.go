package survival

import "errors"

// Sentinel kinds for model construction and fitting.
var (
	ErrUnknownModel = errors.New("unknown model")
	ErrNoCovariates = errors.New("no varying covariates")
	ErrNotFinite    = errors.New("fit produced non-finite coefficients")
	ErrAlwaysFails  = errors.New("model configured to fail")
)
