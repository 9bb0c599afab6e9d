// Package concordance estimates Harrell's C and time-dependent concordance at a
// fixed horizon through a chain of estimation tiers.
package concordance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/graftloss/pkg/logger"
	"github.com/okian/graftloss/pkg/metrics"
)

const (
	defaultMaxPairwise   = 2000
	defaultSubsampleSeed = 42
)

// Estimate holds both concordance values. NaN marks an undefined estimate.
type Estimate struct {
	TimeDependent   float64
	TimeIndependent float64
	// Tier names the chain tier that produced the counts.
	Tier string
	// Reason explains an undefined estimate.
	Reason string
	N      int
}

// Estimator walks its tiers in order until one succeeds.
type Estimator struct {
	primary       []Backend
	chain         []Backend
	maxPairwise   int
	subsampleSeed int64
	log           logger.Logger
}

// NewEstimator creates an Estimator. The default chain is
// sorted -> pairwise (n <= 2000) -> subsample (2000 subjects, seed 42).
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		primary:       []Backend{Sorted{}},
		maxPairwise:   defaultMaxPairwise,
		subsampleSeed: defaultSubsampleSeed,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chain == nil {
		e.chain = append(append([]Backend{}, e.primary...),
			Pairwise{MaxN: e.maxPairwise},
			Subsample{N: e.maxPairwise, Seed: e.subsampleSeed},
		)
	}
	return e
}

// Tiers returns the tier names in the order they are tried.
func (e *Estimator) Tiers() []string {
	out := make([]string, len(e.chain))
	for i, b := range e.chain {
		out[i] = b.Name()
	}
	return out
}

// Estimate computes both statistics. Subjects with non-finite risk are dropped
// first. Degenerate input yields NaN, never an error.
func (e *Estimator) Estimate(ctx context.Context, in Input, horizon float64) Estimate {
	start := time.Now()
	defer func() {
		metrics.RecordConcordanceDuration(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if len(in.Events) != in.Len() || len(in.Risk) != in.Len() {
		reason := fmt.Sprintf("length mismatch: %d durations, %d events, %d scores", in.Len(), len(in.Events), len(in.Risk))
		e.log.Warn(ctx, "concordance input rejected", logger.String("reason", reason))
		return e.undefined(reason, in.Len())
	}

	in, dropped := in.finite()
	if dropped > 0 {
		e.log.Debug(ctx, "dropped non-finite risk scores", logger.Int("dropped", dropped), logger.Int("n", in.Len()))
	}
	if reason := in.degenerate(); reason != "" {
		e.log.Debug(ctx, "concordance undefined", logger.String("reason", reason), logger.Int("n", in.Len()))
		return e.undefined(reason, in.Len())
	}

	for k, b := range e.chain {
		p, err := safeCompute(b, in, horizon)
		if err == nil {
			est := Estimate{
				TimeIndependent: p.Harrell.Oriented(),
				TimeDependent:   math.NaN(),
				Tier:            b.Name(),
				N:               in.Len(),
			}
			if horizon > 0 {
				est.TimeDependent = p.TimeDependent.Oriented()
			}
			if math.IsNaN(est.TimeIndependent) || (horizon > 0 && math.IsNaN(est.TimeDependent)) {
				metrics.RecordConcordanceUndefined()
				est.Reason = "no usable pairs"
			}
			return est
		}

		next := "none"
		if k+1 < len(e.chain) {
			next = e.chain[k+1].Name()
		}
		e.log.Warn(ctx, "concordance tier failed, falling back",
			logger.String("tier", b.Name()),
			logger.String("next", next),
			logger.String("reason", err.Error()),
			logger.Int("n", in.Len()),
		)
		metrics.RecordConcordanceFallback(b.Name(), next)
	}

	e.log.Error(ctx, "every concordance tier failed", logger.Int("n", in.Len()), logger.Int("tiers", len(e.chain)))
	return e.undefined("every tier failed", in.Len())
}

func (e *Estimator) undefined(reason string, n int) Estimate {
	metrics.RecordConcordanceUndefined()
	return Estimate{TimeDependent: math.NaN(), TimeIndependent: math.NaN(), Reason: reason, N: n}
}

// safeCompute turns a panicking tier into an ordinary tier failure.
func safeCompute(b Backend, in Input, horizon float64) (p Pair, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrBackendFailed, b.Name(), r)
		}
	}()
	return b.Compute(in, horizon)
}
