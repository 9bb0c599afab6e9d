package concordance

import "github.com/okian/graftloss/pkg/logger"

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithPrimaryBackends replaces the tiers tried before exact pairwise counting.
// The default is the Sorted counter; passing none leaves only pairwise and subsample.
func WithPrimaryBackends(bs ...Backend) Option {
	return func(e *Estimator) {
		e.primary = bs
	}
}

// WithMaxPairwise caps the exact pairwise tier and sets the subsample size.
func WithMaxPairwise(n int) Option {
	return func(e *Estimator) {
		if n >= 2 {
			e.maxPairwise = n
		}
	}
}

// WithSubsampleSeed fixes the subsample draw.
func WithSubsampleSeed(seed int64) Option {
	return func(e *Estimator) {
		e.subsampleSeed = seed
	}
}

// WithChain replaces the whole tier chain.
func WithChain(bs ...Backend) Option {
	return func(e *Estimator) {
		e.chain = bs
	}
}

// WithLogger sets the logger used for tier transitions.
func WithLogger(l logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.log = l
		}
	}
}
