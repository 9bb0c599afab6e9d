package aggregate

// Option applies a configuration option to importance aggregation.
type Option func(*importanceConfig)

type importanceConfig struct {
	median bool
}

// WithMedianAcrossSplits combines per-split importance vectors with the median
// instead of the mean.
func WithMedianAcrossSplits() Option {
	return func(c *importanceConfig) {
		c.median = true
	}
}
