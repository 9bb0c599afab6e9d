package synthcohort

import "errors"

// ErrInvalidConfig reports generator settings outside their accepted range.
var ErrInvalidConfig = errors.New("invalid cohort config")
