package service

import (
	"errors"

	"github.com/okian/graftloss/internal/domain/types"
)

// Sentinel kinds returned by Run and the read accessors.
var (
	ErrInvalidConfig  = errors.New("invalid run configuration")
	ErrPlanMismatch   = errors.New("stored split plan does not match the run")
	ErrRunInProgress  = errors.New("run already in progress")
	ErrNotReady       = types.ErrNotReady
	ErrNoModels       = errors.New("no models to evaluate")
	ErrDuplicateModel = errors.New("duplicate model name")
)
