// Package survival provides the survival models the evaluation engine can run.
package survival

import (
	"fmt"

	"github.com/okian/graftloss/internal/domain/model"
)

const defaultBags = 25

// BuildOptions configures models built by name.
type BuildOptions struct {
	RidgePenalty float64
	Seed         int64
	Threads      int
	Covariates   []string
}

// Names lists the registered model names.
func Names() []string {
	return []string{"coxph", "ridge", "bagged_ridge", "null", "failing"}
}

// Build constructs the named models. Models with internal parallelism get
// opts.Threads as their thread budget.
func Build(names []string, opts BuildOptions) ([]model.Model, error) {
	out := make([]model.Model, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, fmt.Errorf("%w: %q listed twice", ErrUnknownModel, n)
		}
		seen[n] = true

		var m model.Model
		switch n {
		case "coxph":
			m = CoxPH{Covariates: opts.Covariates}
		case "ridge":
			r := NewSignedTimeRidge(opts.RidgePenalty)
			r.Covariates = opts.Covariates
			m = r
		case "bagged_ridge":
			r := NewBaggedRidge(opts.RidgePenalty, defaultBags, opts.Seed)
			r.Covariates = opts.Covariates
			m = r
		case "null":
			m = Null{Seed: opts.Seed}
		case "failing":
			m = Failing{}
		default:
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownModel, n, Names())
		}
		if tl, ok := m.(model.ThreadLimiter); ok && opts.Threads > 0 {
			tl.SetThreads(opts.Threads)
		}
		out = append(out, m)
	}
	return out, nil
}
