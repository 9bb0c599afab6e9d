// Package model contains the survival model contract and the per-unit
// evaluation result passed between layers.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/graftloss/internal/domain/dataset"
)

// Model is a survival model the evaluation engine can fit on a training partition.
type Model interface {
	// Name identifies the model in results and reports.
	Name() string
	// Fit trains on the given rows, honoring ctx for cancellation where the
	// underlying library allows it.
	Fit(ctx context.Context, train *dataset.Dataset) (Fitted, error)
}

// Fitted is a trained model state.
type Fitted interface {
	// PredictRisk returns one risk score per test row; higher means worse.
	PredictRisk(ctx context.Context, test *dataset.Dataset) ([]float64, error)
}

// Importancer is the optional importance capability of a Fitted model.
// Models that do not implement it contribute nothing to importance aggregation.
type Importancer interface {
	Importance() (map[string]float64, error)
}

// ThreadLimiter is implemented by models with their own internal parallelism.
// The worker pool sets it so that workers x threads stays within the core count.
type ThreadLimiter interface {
	SetThreads(n int)
}

// Unit identifies one (model, split) piece of work.
type Unit struct {
	Model string `json:"model"`
	Split int    `json:"split"`
}

// Key is the stable identifier used by dedupe and storage.
func (u Unit) Key() string {
	return fmt.Sprintf("%s/%06d", u.Model, u.Split)
}

// FailureKind classifies a failed unit.
type FailureKind string

// Failure kinds recorded on a Result.
const (
	FailureNone      FailureKind = ""
	FailureFit       FailureKind = "fit_error"
	FailurePredict   FailureKind = "predict_error"
	FailureTimeout   FailureKind = "timeout"
	FailurePanic     FailureKind = "panic"
	FailureCancelled FailureKind = "cancelled"
)

// Result is the outcome of one unit. Concordance fields are NaN when the unit
// failed or the estimate was undefined. A nil Importance means the model has no
// importance capability or the unit failed; it is distinct from zero importance.
type Result struct {
	Unit            Unit
	TimeDependent   float64
	TimeIndependent float64
	Elapsed         time.Duration
	Importance      map[string]float64
	FailureKind     FailureKind
	Err             string
	NTrain          int
	NTest           int
}

// Failed reports whether the unit ended in an error.
func (r Result) Failed() bool { return r.FailureKind != FailureNone }
