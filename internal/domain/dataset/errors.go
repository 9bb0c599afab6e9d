package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrInvalidDataset = errors.New("invalid dataset")
	ErrColumnNotFound = errors.New("column not found")
)
