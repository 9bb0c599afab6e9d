package evaluate

import (
	"time"

	"github.com/okian/graftloss/internal/domain/concordance"
	"github.com/okian/graftloss/pkg/logger"
)

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithEstimator sets the concordance estimator.
func WithEstimator(est *concordance.Estimator) Option {
	return func(e *Evaluator) {
		if est != nil {
			e.estimator = est
		}
	}
}

// WithHorizon sets the time-dependent concordance horizon.
func WithHorizon(h float64) Option {
	return func(e *Evaluator) {
		e.horizon = h
	}
}

// WithTimeout bounds fit+predict per unit. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d >= 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger for unit failures.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}
