package survival

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Linear scores risk with fixed coefficients and does no fitting.
type Linear struct {
	Label        string
	Coefficients map[string]float64
}

// Name implements model.Model.
func (l Linear) Name() string {
	if l.Label == "" {
		return "linear"
	}
	return l.Label
}

// Fit implements model.Model. Importance is |coef| x sd on the training rows.
func (l Linear) Fit(_ context.Context, train *dataset.Dataset) (model.Fitted, error) {
	names := make([]string, 0, len(l.Coefficients))
	for n := range l.Coefficients {
		names = append(names, n)
	}
	sort.Strings(names)
	beta := make([]float64, len(names))
	effect := make([]float64, len(names))
	for j, n := range names {
		c, err := train.Column(n)
		if err != nil {
			return nil, err
		}
		beta[j] = l.Coefficients[n]
		effect[j] = beta[j] * stat.StdDev(c.Values, nil)
	}
	return &coxFit{names: names, beta: beta, importance: importanceFor(train.Names(), names, effect)}, nil
}

// Null is an intercept-only model. It has no information about the outcome,
// so its scores are seeded noise; a constant score would leave concordance
// undefined rather than at chance.
type Null struct {
	Seed int64
}

// Name implements model.Model.
func (Null) Name() string { return "null" }

// Fit implements model.Model.
func (n Null) Fit(_ context.Context, train *dataset.Dataset) (model.Fitted, error) {
	// vary the draw with the training partition so splits do not share noise
	var h uint64
	for _, t := range train.Durations {
		h = h*31 + math.Float64bits(t)
	}
	return nullFit{seed: n.Seed ^ int64(h)}, nil
}

type nullFit struct{ seed int64 }

func (f nullFit) PredictRisk(_ context.Context, test *dataset.Dataset) ([]float64, error) {
	rng := rand.New(rand.NewSource(f.seed)) //nolint:gosec // reproducible noise
	out := make([]float64, test.Len())
	for i := range out {
		out[i] = rng.Float64()
	}
	return out, nil
}

// Failing always fails to fit. It exercises partial-failure handling.
type Failing struct {
	Label string
}

// Name implements model.Model.
func (f Failing) Name() string {
	if f.Label == "" {
		return "failing"
	}
	return f.Label
}

// Fit implements model.Model.
func (Failing) Fit(context.Context, *dataset.Dataset) (model.Fitted, error) {
	return nil, ErrAlwaysFails
}
