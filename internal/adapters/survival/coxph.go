package survival

import (
	"context"
	"fmt"
	"math"

	"github.com/kshedden/statmodel/duration"
	"github.com/kshedden/statmodel/statmodel"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/model"
)

// Reserved column names in the statmodel dataset.
const (
	coxTimeVar   = "__time"
	coxStatusVar = "__status"
)

// CoxPH is a proportional hazards regression fitted by statmodel.
// Risk is the linear predictor; importance is |beta| x sd.
type CoxPH struct {
	Covariates []string
}

// Name implements model.Model.
func (CoxPH) Name() string { return "coxph" }

// Fit implements model.Model.
func (c CoxPH) Fit(_ context.Context, train *dataset.Dataset) (model.Fitted, error) {
	s := varying(train, c.Covariates)
	if len(s.names) == 0 {
		return nil, ErrNoCovariates
	}

	cols := make([][]float64, 0, len(s.names)+2)
	for _, n := range s.names {
		col, _ := train.Column(n)
		cols = append(cols, append([]float64(nil), col.Values...))
	}
	status := make([]float64, train.Len())
	for i, e := range train.Events {
		status[i] = float64(e)
	}
	cols = append(cols, append([]float64(nil), train.Durations...), status)
	names := append(append([]string{}, s.names...), coxTimeVar, coxStatusVar)

	ph, err := duration.NewPHReg(statmodel.NewDataset(cols, names), coxTimeVar, coxStatusVar, s.names, nil)
	if err != nil {
		return nil, fmt.Errorf("build phreg: %w", err)
	}
	res, err := ph.Fit()
	if err != nil {
		return nil, fmt.Errorf("fit phreg: %w", err)
	}
	beta := append([]float64(nil), res.Params()...)
	if len(beta) != len(s.names) {
		return nil, fmt.Errorf("phreg returned %d coefficients for %d covariates", len(beta), len(s.names))
	}
	effect := make([]float64, len(beta))
	for j, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("%w: %s", ErrNotFinite, s.names[j])
		}
		effect[j] = b * s.sd[j]
	}
	return &coxFit{names: s.names, beta: beta, importance: importanceFor(train.Names(), s.names, effect)}, nil
}

type coxFit struct {
	names      []string
	beta       []float64
	importance map[string]float64
}

func (f *coxFit) PredictRisk(_ context.Context, test *dataset.Dataset) ([]float64, error) {
	return linearPredictor(test, f.names, f.beta)
}

func (f *coxFit) Importance() (map[string]float64, error) { return f.importance, nil }
