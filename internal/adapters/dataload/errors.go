package dataload

import "errors"

// Sentinel kinds for table loading.
var (
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrEmptyTable        = errors.New("table has no data rows")
	ErrInvalidCell       = errors.New("invalid cell")
)
