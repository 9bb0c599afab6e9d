package survival

import (
	"fmt"

	"github.com/okian/graftloss/internal/domain/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// scaling holds per-column training moments.
type scaling struct {
	names []string
	mean  []float64
	sd    []float64
}

// varying returns the covariates with non-zero spread in ds, with their moments.
// Constant columns cannot be estimated and are left out.
func varying(ds *dataset.Dataset, names []string) scaling {
	if names == nil {
		names = ds.Names()
	}
	var s scaling
	for _, n := range names {
		c, err := ds.Column(n)
		if err != nil {
			continue
		}
		m, sd := stat.MeanStdDev(c.Values, nil)
		if !(sd > 0) {
			continue
		}
		s.names = append(s.names, n)
		s.mean = append(s.mean, m)
		s.sd = append(s.sd, sd)
	}
	return s
}

// standardized returns the rows of ds as a dense matrix scaled by s.
func (s scaling) standardized(ds *dataset.Dataset) (*mat.Dense, error) {
	if len(s.names) == 0 {
		return nil, ErrNoCovariates
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("standardize: empty table")
	}
	x := mat.NewDense(ds.Len(), len(s.names), nil)
	for j, n := range s.names {
		c, err := ds.Column(n)
		if err != nil {
			return nil, fmt.Errorf("covariate %q: %w", n, err)
		}
		for i, v := range c.Values {
			x.Set(i, j, (v-s.mean[j])/s.sd[j])
		}
	}
	return x, nil
}

// linearPredictor returns X·beta for the raw (unscaled) columns of ds.
func linearPredictor(ds *dataset.Dataset, names []string, beta []float64) ([]float64, error) {
	out := make([]float64, ds.Len())
	for j, n := range names {
		c, err := ds.Column(n)
		if err != nil {
			return nil, fmt.Errorf("covariate %q: %w", n, err)
		}
		for i, v := range c.Values {
			out[i] += beta[j] * v
		}
	}
	return out, nil
}

// importanceFor reports |effect| for every covariate of the training table,
// zero for those left out of the fit.
func importanceFor(all []string, fitted []string, effect []float64) map[string]float64 {
	out := make(map[string]float64, len(all))
	for _, n := range all {
		out[n] = 0
	}
	for j, n := range fitted {
		v := effect[j]
		if v < 0 {
			v = -v
		}
		out[n] = v
	}
	return out
}
