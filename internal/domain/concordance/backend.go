package concordance

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/exascience/pargo/parallel"
)

// Backend is one tier of the estimation chain. A tier returns raw counts for
// both statistics, or an error that moves the Estimator to the next tier.
// A horizon that is not positive skips the time-dependent count.
type Backend interface {
	Name() string
	Compute(in Input, horizon float64) (Pair, error)
}

// Tier names used in logs and metrics.
const (
	TierSorted    = "sorted"
	TierPairwise  = "pairwise"
	TierSubsample = "subsample"
)

// Sorted counts pairs in O(n log n) with a Fenwick tree over risk ranks.
type Sorted struct{}

// Name implements Backend.
func (Sorted) Name() string { return TierSorted }

// Compute implements Backend.
func (Sorted) Compute(in Input, horizon float64) (Pair, error) {
	n := in.Len()
	ranks, m := rankRisk(in.Risk)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return in.Durations[order[a]] > in.Durations[order[b]] })

	var p Pair
	tree := newFenwick(m)
	inserted := int64(0)
	for start := 0; start < n; {
		end := start
		for end < n && in.Durations[order[end]] == in.Durations[order[start]] {
			end++
		}
		// tree holds subjects with strictly longer durations
		for _, i := range order[start:end] {
			if in.Events[i] != 1 {
				continue
			}
			below := tree.prefix(ranks[i] - 1)
			atOrBelow := tree.prefix(ranks[i])
			p.Harrell.Concordant += below
			p.Harrell.Tied += atOrBelow - below
			p.Harrell.Discordant += inserted - atOrBelow
		}
		for _, i := range order[start:end] {
			tree.add(ranks[i])
			inserted++
		}
		start = end
	}

	if horizon > 0 {
		var controls []float64
		for i := 0; i < n; i++ {
			if in.isControl(i, horizon) {
				controls = append(controls, in.Risk[i])
			}
		}
		sort.Float64s(controls)
		nc := int64(len(controls))
		for i := 0; i < n; i++ {
			if !in.isCase(i, horizon) {
				continue
			}
			r := in.Risk[i]
			below := int64(sort.SearchFloat64s(controls, r))
			atOrBelow := int64(sort.Search(len(controls), func(k int) bool { return controls[k] > r }))
			p.TimeDependent.Concordant += below
			p.TimeDependent.Tied += atOrBelow - below
			p.TimeDependent.Discordant += nc - atOrBelow
		}
	}
	return p, nil
}

// Pairwise compares every usable pair directly, in parallel over rows.
// Inputs above MaxN are rejected so the chain moves on to subsampling.
type Pairwise struct {
	MaxN int
}

// Name implements Backend.
func (Pairwise) Name() string { return TierPairwise }

// Compute implements Backend.
func (b Pairwise) Compute(in Input, horizon float64) (Pair, error) {
	if b.MaxN > 0 && in.Len() > b.MaxN {
		return Pair{}, fmt.Errorf("%w: n=%d exceeds pairwise cap %d", ErrBackendUnsupported, in.Len(), b.MaxN)
	}
	return pairwise(in, horizon), nil
}

// Subsample draws N subjects with a fixed seed and counts pairs exactly on them.
type Subsample struct {
	N    int
	Seed int64
}

// Name implements Backend.
func (Subsample) Name() string { return TierSubsample }

// Compute implements Backend.
func (b Subsample) Compute(in Input, horizon float64) (Pair, error) {
	if b.N < 2 {
		return Pair{}, fmt.Errorf("%w: subsample size %d", ErrBackendUnsupported, b.N)
	}
	if in.Len() <= b.N {
		return pairwise(in, horizon), nil
	}
	rng := rand.New(rand.NewSource(b.Seed)) //nolint:gosec // reproducible subsample
	idx := rng.Perm(in.Len())[:b.N]
	sort.Ints(idx)
	return pairwise(in.subset(idx), horizon), nil
}

func pairwise(in Input, horizon float64) Pair {
	n := in.Len()
	if n == 0 {
		return Pair{}
	}
	sum := func(x, y interface{}) interface{} {
		a, b := x.(Pair), y.(Pair)
		return Pair{Harrell: a.Harrell.Add(b.Harrell), TimeDependent: a.TimeDependent.Add(b.TimeDependent)}
	}
	return parallel.RangeReduce(0, n, 0, func(low, high int) interface{} {
		var p Pair
		for i := low; i < high; i++ {
			if in.Events[i] == 1 {
				for j := 0; j < n; j++ {
					if in.Durations[i] < in.Durations[j] {
						p.Harrell.compare(in.Risk[i], in.Risk[j])
					}
				}
			}
			if horizon > 0 && in.isCase(i, horizon) {
				for j := 0; j < n; j++ {
					if in.isControl(j, horizon) {
						p.TimeDependent.compare(in.Risk[i], in.Risk[j])
					}
				}
			}
		}
		return p
	}, sum).(Pair)
}

// rankRisk maps scores to dense 1-based ranks; equal scores share a rank.
func rankRisk(risk []float64) ([]int, int) {
	sorted := append([]float64(nil), risk...)
	sort.Float64s(sorted)
	uniq := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if len(uniq) == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	ranks := make([]int, len(risk))
	for i, v := range risk {
		ranks[i] = sort.SearchFloat64s(uniq, v) + 1
	}
	return ranks, len(uniq)
}

type fenwick []int64

func newFenwick(n int) fenwick { return make(fenwick, n+1) }

func (f fenwick) add(i int) {
	for ; i < len(f); i += i & -i {
		f[i]++
	}
}

func (f fenwick) prefix(i int) int64 {
	var s int64
	for ; i > 0; i -= i & -i {
		s += f[i]
	}
	return s
}
