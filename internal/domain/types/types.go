// Package types contains the row types shared by the report writers and the results API.
package types

import (
	"time"

	"github.com/okian/graftloss/internal/domain/aggregate"
	"github.com/okian/graftloss/internal/domain/model"
)

// PerformanceRow is one model's summary. Undefined values encode as null.
type PerformanceRow struct {
	Model        string   `json:"model"`
	TDMean       *float64 `json:"cindex_time_dependent_mean"`
	TDSD         *float64 `json:"cindex_time_dependent_sd"`
	TDCILow      *float64 `json:"cindex_time_dependent_ci_low"`
	TDCIHigh     *float64 `json:"cindex_time_dependent_ci_high"`
	TIMean       *float64 `json:"cindex_time_independent_mean"`
	TISD         *float64 `json:"cindex_time_independent_sd"`
	TICILow      *float64 `json:"cindex_time_independent_ci_low"`
	TICIHigh     *float64 `json:"cindex_time_independent_ci_high"`
	NValidSplits int      `json:"n_valid_splits"`
	NFailed      int      `json:"n_failed_splits"`
	NTotalSplits int      `json:"n_total_splits"`
	MeanFitMS    float64  `json:"mean_fit_ms"`
}

// ImportanceRow is one feature's aggregate importance with its rank.
type ImportanceRow struct {
	Rank       int     `json:"rank"`
	Feature    string  `json:"feature"`
	Importance float64 `json:"aggregate_importance"`
}

// Progress is a point-in-time view of a run.
type Progress struct {
	RunID     string  `json:"run_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Ratio     float64 `json:"ratio"`
	Done      bool    `json:"done"`
	Partial   bool    `json:"partial"`
}

// RunSummary is the run metadata written next to the tables.
type RunSummary struct {
	RunID         string           `json:"run_id"`
	Seed          int64            `json:"seed"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	Partial       bool             `json:"partial"`
	BestModel     string           `json:"best_model,omitempty"`
	Splits        int              `json:"splits"`
	Models        []string         `json:"models"`
	Horizon       float64          `json:"horizon"`
	TrainFraction float64          `json:"train_fraction"`
	Performance   []PerformanceRow `json:"performance"`
	Importance    []ImportanceRow  `json:"importance"`
}

// PerformanceRows converts summary records for output.
func PerformanceRows(recs []aggregate.PerformanceRecord) []PerformanceRow {
	out := make([]PerformanceRow, len(recs))
	for i, r := range recs {
		out[i] = PerformanceRow{
			Model:        r.Model,
			TDMean:       model.NullableFloat(r.TimeDependent.Mean),
			TDSD:         model.NullableFloat(r.TimeDependent.SD),
			TDCILow:      model.NullableFloat(r.TimeDependent.CILow),
			TDCIHigh:     model.NullableFloat(r.TimeDependent.CIHigh),
			TIMean:       model.NullableFloat(r.TimeIndependent.Mean),
			TISD:         model.NullableFloat(r.TimeIndependent.SD),
			TICILow:      model.NullableFloat(r.TimeIndependent.CILow),
			TICIHigh:     model.NullableFloat(r.TimeIndependent.CIHigh),
			NValidSplits: r.NValid,
			NFailed:      r.NFailed,
			NTotalSplits: r.NTotal,
			MeanFitMS:    float64(r.MeanElapsed.Microseconds()) / 1000,
		}
	}
	return out
}

// ImportanceRows converts importance records for output, ranking from 1.
func ImportanceRows(recs []aggregate.ImportanceRecord) []ImportanceRow {
	out := make([]ImportanceRow, len(recs))
	for i, r := range recs {
		out[i] = ImportanceRow{Rank: i + 1, Feature: r.Feature, Importance: r.Importance}
	}
	return out
}
