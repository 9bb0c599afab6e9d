package aggregate

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/okian/graftloss/internal/domain/model"
	"gonum.org/v1/gonum/floats"
)

// ImportanceRecord is the aggregate importance of one feature.
type ImportanceRecord struct {
	Feature    string
	Importance float64
}

// AggregateImportance combines every (model, split) importance vector:
// clamp negatives to zero, normalise to unit sum (uniform when all zero),
// scale by mean_td / best_mean_td x n_models, sum per split, combine across
// splits, then normalise the result to unit sum.
//
// Models without a defined time-dependent mean contribute nothing. When no
// model has one, the time-independent means weight the models instead.
// Records are sorted by importance, highest first; no feature is pruned.
func AggregateImportance(results []model.Result, summary []PerformanceRecord, opts ...Option) []ImportanceRecord {
	cfg := importanceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	weights := modelWeights(summary)
	if len(weights) == 0 {
		return nil
	}

	featureIdx := make(map[string]int)
	var features []string
	for _, r := range results {
		if _, ok := weights[r.Unit.Model]; !ok || r.Failed() || r.Importance == nil {
			continue
		}
		for f := range r.Importance {
			if _, seen := featureIdx[f]; !seen {
				featureIdx[f] = len(features)
				features = append(features, f)
			}
		}
	}
	if len(features) == 0 {
		return nil
	}

	perSplit := make(map[int][]float64)
	for _, r := range results {
		w, ok := weights[r.Unit.Model]
		if !ok || r.Failed() || len(r.Importance) == 0 {
			continue
		}
		vec := normalizedVector(r.Importance, featureIdx, len(features))
		acc, ok := perSplit[r.Unit.Split]
		if !ok {
			acc = make([]float64, len(features))
			perSplit[r.Unit.Split] = acc
		}
		floats.AddScaled(acc, w, vec)
	}

	combined := make([]float64, len(features))
	column := make([]float64, 0, len(perSplit))
	for j := range features {
		column = column[:0]
		for _, vec := range perSplit {
			column = append(column, vec[j])
		}
		if cfg.median {
			combined[j], _ = stats.Median(column)
		} else {
			combined[j] = floats.Sum(column) / float64(len(column))
		}
	}
	if total := floats.Sum(combined); total > 0 {
		floats.Scale(1/total, combined)
	}

	out := make([]ImportanceRecord, len(features))
	for j, f := range features {
		out[j] = ImportanceRecord{Feature: f, Importance: combined[j]}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// TopN returns the first n records, or all of them when n <= 0.
func TopN(records []ImportanceRecord, n int) []ImportanceRecord {
	if n <= 0 || n >= len(records) {
		return records
	}
	return records[:n]
}

// modelWeights maps each model with a defined mean to mean/best x n_models.
func modelWeights(summary []PerformanceRecord) map[string]float64 {
	pick := func(r PerformanceRecord) float64 { return r.TimeDependent.Mean }
	if !anyDefined(summary, pick) {
		pick = func(r PerformanceRecord) float64 { return r.TimeIndependent.Mean }
	}

	best := math.Inf(-1)
	for _, r := range summary {
		if m := pick(r); !math.IsNaN(m) && m > best {
			best = m
		}
	}
	if !(best > 0) {
		return nil
	}

	n := float64(len(summary))
	weights := make(map[string]float64, len(summary))
	for _, r := range summary {
		if m := pick(r); !math.IsNaN(m) {
			weights[r.Model] = m / best * n
		}
	}
	return weights
}

func anyDefined(summary []PerformanceRecord, pick func(PerformanceRecord) float64) bool {
	for _, r := range summary {
		if !math.IsNaN(pick(r)) {
			return true
		}
	}
	return false
}

// normalizedVector clamps, unit-sums and lays imp out on the shared feature index.
// Features the model did not report stay at zero.
func normalizedVector(imp map[string]float64, idx map[string]int, n int) []float64 {
	vec := make([]float64, n)
	for f, v := range imp {
		if v > 0 && !math.IsInf(v, 0) {
			vec[idx[f]] = v
		}
	}
	if total := floats.Sum(vec); total > 0 {
		floats.Scale(1/total, vec)
		return vec
	}
	u := 1 / float64(len(imp))
	for f := range imp {
		vec[idx[f]] = u
	}
	return vec
}
