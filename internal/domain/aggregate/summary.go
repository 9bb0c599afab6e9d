// Package aggregate turns per-unit results into per-model performance summaries
// and a performance-weighted feature importance table.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/okian/graftloss/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// CI bounds as quantiles of the per-split distribution.
const (
	ciLow  = 0.025
	ciHigh = 0.975
)

// Stat summarises one concordance type over the splits where it was defined.
// SD and CI are NaN with fewer than 2 values.
type Stat struct {
	Mean   float64
	SD     float64
	CILow  float64
	CIHigh float64
	N      int
}

// PerformanceRecord is the summary row for one model.
type PerformanceRecord struct {
	Model           string
	TimeDependent   Stat
	TimeIndependent Stat
	// NValid counts units that completed and yielded at least one concordance value.
	NValid  int
	NFailed int
	// NTotal is the configured split count, so NValid/NTotal exposes failures.
	NTotal      int
	MeanElapsed time.Duration
}

// Summarize groups results by model. models lists rows that must appear even
// without results; it may be nil. Records are sorted by time-dependent mean,
// best first, with undefined means last and names breaking ties.
func Summarize(results []model.Result, models []string, totalSplits int) []PerformanceRecord {
	type acc struct {
		td, ti  []float64
		valid   int
		failed  int
		elapsed time.Duration
		timed   int
	}
	groups := make(map[string]*acc)
	for _, name := range models {
		groups[name] = &acc{}
	}
	for _, r := range results {
		a, ok := groups[r.Unit.Model]
		if !ok {
			a = &acc{}
			groups[r.Unit.Model] = a
		}
		if r.Failed() {
			a.failed++
			continue
		}
		a.td = append(a.td, r.TimeDependent)
		a.ti = append(a.ti, r.TimeIndependent)
		if !math.IsNaN(r.TimeDependent) || !math.IsNaN(r.TimeIndependent) {
			a.valid++
		}
		a.elapsed += r.Elapsed
		a.timed++
	}

	out := make([]PerformanceRecord, 0, len(groups))
	for name, a := range groups {
		rec := PerformanceRecord{
			Model:           name,
			TimeDependent:   summarizeStat(a.td),
			TimeIndependent: summarizeStat(a.ti),
			NValid:          a.valid,
			NFailed:         a.failed,
			NTotal:          totalSplits,
		}
		if a.timed > 0 {
			rec.MeanElapsed = a.elapsed / time.Duration(a.timed)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].TimeDependent.Mean, out[j].TimeDependent.Mean
		switch {
		case math.IsNaN(mi) && math.IsNaN(mj):
		case math.IsNaN(mi):
			return false
		case math.IsNaN(mj):
			return true
		case mi != mj:
			return mi > mj
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Best returns the model with the highest defined time-dependent mean.
func Best(summary []PerformanceRecord) (PerformanceRecord, bool) {
	var best PerformanceRecord
	found := false
	for _, r := range summary {
		m := r.TimeDependent.Mean
		if math.IsNaN(m) {
			continue
		}
		if !found || m > best.TimeDependent.Mean || (m == best.TimeDependent.Mean && r.Model < best.Model) {
			best, found = r, true
		}
	}
	return best, found
}

func summarizeStat(values []float64) Stat {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	s := Stat{Mean: math.NaN(), SD: math.NaN(), CILow: math.NaN(), CIHigh: math.NaN(), N: len(finite)}
	if len(finite) == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(finite)
	if len(finite) < 2 {
		return s
	}
	s.SD, _ = stats.StandardDeviationSample(finite)
	sort.Float64s(finite)
	s.CILow = stat.Quantile(ciLow, stat.Empirical, finite, nil)
	s.CIHigh = stat.Quantile(ciHigh, stat.Empirical, finite, nil)
	return s
}
