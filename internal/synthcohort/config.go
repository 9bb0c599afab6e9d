package synthcohort

import "fmt"

// Covariate describes one generated column and its log-hazard coefficient.
type Covariate struct {
	Name string
	Beta float64
	// Binary draws Bernoulli(0.5) instead of a standard normal.
	Binary bool
}

// Config holds generator settings.
type Config struct {
	N              int         // Number of subjects
	EventRate      float64     // Expected share of observed events
	BaselineHazard float64     // Exponential baseline hazard
	Covariates     []Covariate // Generated columns
	Seed           int64       // Source seed; equal seeds give equal cohorts
}

// DefaultConfig returns a 200-subject cohort with two informative covariates,
// one weak binary covariate and one pure-noise column.
func DefaultConfig() Config {
	return Config{
		N:              200,
		EventRate:      0.6,
		BaselineHazard: 0.1,
		Covariates: []Covariate{
			{Name: "age", Beta: 0.9},
			{Name: "marker", Beta: 0.5},
			{Name: "sex", Beta: 0.3, Binary: true},
			{Name: "noise", Beta: 0},
		},
		Seed: 1,
	}
}

// Validate checks the ranges Generate relies on.
func (c Config) Validate() error {
	switch {
	case c.N < 2:
		return fmt.Errorf("%w: n=%d (must be >= 2)", ErrInvalidConfig, c.N)
	case !(c.EventRate > 0 && c.EventRate <= 1):
		return fmt.Errorf("%w: event_rate=%v (must be in (0, 1])", ErrInvalidConfig, c.EventRate)
	case !(c.BaselineHazard > 0):
		return fmt.Errorf("%w: baseline_hazard=%v (must be > 0)", ErrInvalidConfig, c.BaselineHazard)
	case len(c.Covariates) == 0:
		return fmt.Errorf("%w: no covariates", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Covariates))
	for _, cv := range c.Covariates {
		if cv.Name == "" || seen[cv.Name] {
			return fmt.Errorf("%w: covariate name %q empty or repeated", ErrInvalidConfig, cv.Name)
		}
		seen[cv.Name] = true
	}
	return nil
}

// Coefficients returns the true log-hazard coefficients by column name.
func (c Config) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(c.Covariates))
	for _, cv := range c.Covariates {
		out[cv.Name] = cv.Beta
	}
	return out
}
