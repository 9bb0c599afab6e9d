package dedupe

import "github.com/okian/graftloss/internal/domain/model"

type config struct {
	expected   int
	preclaimed []model.Unit
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*config)

// WithExpected presizes the claim set for a run of n units.
func WithExpected(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.expected = n
		}
	}
}

// WithPreclaimed marks units as already done.
func WithPreclaimed(units ...model.Unit) Option {
	return func(c *config) {
		c.preclaimed = append(c.preclaimed, units...)
	}
}
