// Package resample generates stratified Monte Carlo cross-validation splits.
package resample

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// defaultMinStratumSize is the smallest stratum (e.g. event count) worth stratifying.
const defaultMinStratumSize = 10

// Split is one disjoint train/test partition of row indices.
type Split struct {
	Index int   `json:"index"`
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

// Plan is the full split sequence of a run together with what produced it.
// Every model in a run is evaluated on the same Plan.
type Plan struct {
	Seed          int64   `json:"seed"`
	TrainFraction float64 `json:"train_fraction"`
	Rows          int     `json:"rows"`
	Splits        []Split `json:"splits"`
}

// Compatible reports whether a persisted plan can be applied to a table of n rows.
func (p *Plan) Compatible(n int) error {
	if p.Rows != n {
		return fmt.Errorf("%w: plan was built for %d rows, dataset has %d", ErrSplitGeneration, p.Rows, n)
	}
	return nil
}

// Resampler draws stratified splits.
type Resampler struct {
	seed       int64
	seeded     bool
	minStratum int
}

// New creates a Resampler. Without WithSeed every Generate call draws a fresh seed.
func New(opts ...Option) *Resampler {
	r := &Resampler{minStratum: defaultMinStratumSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate builds repetitions splits over rows labelled by strata (0 or 1 per row).
// Each stratum is sampled independently with trainFraction of its rows going
// to training, so partition event rates differ from the full rate by rounding only.
func (r *Resampler) Generate(strata []int, repetitions int, trainFraction float64) (*Plan, error) {
	if repetitions < 1 {
		return nil, fmt.Errorf("%w: repetitions=%d (must be >= 1)", ErrInvalidConfig, repetitions)
	}
	if !(trainFraction > 0 && trainFraction < 1) {
		return nil, fmt.Errorf("%w: train_fraction=%v (must be in (0, 1))", ErrInvalidConfig, trainFraction)
	}

	groups := make([][]int, 2)
	for i, s := range strata {
		if s != 0 && s != 1 {
			return nil, fmt.Errorf("%w: row %d has stratum %d, must be 0 or 1", ErrInvalidConfig, i, s)
		}
		groups[s] = append(groups[s], i)
	}

	for label, g := range groups {
		if len(g) < r.minStratum {
			return nil, fmt.Errorf("%w: stratum %d has %d rows, at least %d are needed to stratify",
				ErrSplitGeneration, label, len(g), r.minStratum)
		}
	}

	takes := make([]int, len(groups))
	logCombos := 0.0
	for label, g := range groups {
		k := int(math.Round(float64(len(g)) * trainFraction))
		if k < 1 || k >= len(g) {
			lo, hi := viableFractions(len(g))
			return nil, fmt.Errorf("%w: train_fraction=%v leaves stratum %d (%d rows) with an empty partition; viable range is [%.3f, %.3f]",
				ErrSplitGeneration, trainFraction, label, len(g), lo, hi)
		}
		takes[label] = k
		logCombos += logChoose(len(g), k)
	}
	if logCombos+1e-9 < math.Log(float64(repetitions)) {
		maxReps := int(math.Round(math.Exp(logCombos)))
		return nil, fmt.Errorf("%w: only %d distinct splits exist for %d rows at train_fraction=%v, requested repetitions=%d",
			ErrSplitGeneration, maxReps, len(strata), trainFraction, repetitions)
	}

	seed := r.seed
	if !r.seeded {
		seed = rand.Int63() //nolint:gosec // seed is recorded in the plan
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible resampling, not security

	plan := &Plan{
		Seed:          seed,
		TrainFraction: trainFraction,
		Rows:          len(strata),
		Splits:        make([]Split, repetitions),
	}
	work := make([]int, 0, len(strata))
	for rep := 0; rep < repetitions; rep++ {
		sp := Split{
			Index: rep,
			Train: make([]int, 0, takes[0]+takes[1]),
			Test:  make([]int, 0, len(strata)-takes[0]-takes[1]),
		}
		for label, g := range groups {
			work = append(work[:0], g...)
			rng.Shuffle(len(work), func(i, j int) { work[i], work[j] = work[j], work[i] })
			sp.Train = append(sp.Train, work[:takes[label]]...)
			sp.Test = append(sp.Test, work[takes[label]:]...)
		}
		sort.Ints(sp.Train)
		sort.Ints(sp.Test)
		plan.Splits[rep] = sp
	}
	return plan, nil
}

// viableFractions is the train fraction range that keeps both partitions of an
// n-row stratum non-empty after rounding: round(n*f) must land in [1, n-1].
func viableFractions(n int) (float64, float64) {
	return 0.5 / float64(n), 1 - 0.5/float64(n)
}

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}
