package survival

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/model"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// SignedTimeRidge is an L2-penalized linear risk model on standardized
// covariates. Outcomes are encoded as signed times (+t for events, -t for
// censored rows); the regression target is the Nelson-Aalen martingale
// residual decoded from them, which makes the fit a one-step approximation
// of the Cox score. Risk is the prediction. With Bags > 1 it averages
// bootstrap fits, running up to the configured thread count in parallel.
type SignedTimeRidge struct {
	Penalty    float64
	Bags       int
	Seed       int64
	Covariates []string

	mu      sync.RWMutex
	threads int
}

// NewSignedTimeRidge creates a single-fit ridge model.
func NewSignedTimeRidge(penalty float64) *SignedTimeRidge {
	return &SignedTimeRidge{Penalty: penalty, Bags: 1, threads: 1}
}

// NewBaggedRidge creates a bootstrap-aggregated ridge model.
func NewBaggedRidge(penalty float64, bags int, seed int64) *SignedTimeRidge {
	return &SignedTimeRidge{Penalty: penalty, Bags: bags, Seed: seed, threads: 1}
}

// Name implements model.Model.
func (r *SignedTimeRidge) Name() string {
	if r.Bags > 1 {
		return "bagged_ridge"
	}
	return "ridge"
}

// SetThreads implements model.ThreadLimiter.
func (r *SignedTimeRidge) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	r.threads = n
	r.mu.Unlock()
}

// Threads returns the internal parallelism limit.
func (r *SignedTimeRidge) Threads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads
}

// Fit implements model.Model.
func (r *SignedTimeRidge) Fit(ctx context.Context, train *dataset.Dataset) (model.Fitted, error) {
	s := varying(train, r.Covariates)
	x, err := s.standardized(train)
	if err != nil {
		return nil, err
	}
	y := signedTime(train)

	bags := r.Bags
	if bags < 1 {
		bags = 1
	}
	if bags == 1 {
		beta, err := solveRidge(x, martingale(y), r.Penalty)
		if err != nil {
			return nil, err
		}
		return newRidgeFit(train, s, beta), nil
	}

	betas := make([][]float64, bags)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Threads())
	n, _ := x.Dims()
	for b := 0; b < bags; b++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(r.Seed + int64(b))) //nolint:gosec // reproducible bootstrap
			rows := make([]int, n)
			for i := range rows {
				rows[i] = rng.Intn(n)
			}
			xb, yb := bootstrap(x, y, rows)
			beta, err := solveRidge(xb, martingale(yb), r.Penalty)
			if err != nil {
				return fmt.Errorf("bag %d: %w", b, err)
			}
			betas[b] = beta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	avg := make([]float64, len(s.names))
	for _, beta := range betas {
		for j, v := range beta {
			avg[j] += v / float64(bags)
		}
	}
	return newRidgeFit(train, s, avg), nil
}

func signedTime(ds *dataset.Dataset) []float64 {
	y := make([]float64, ds.Len())
	for i, t := range ds.Durations {
		if ds.Events[i] == 1 {
			y[i] = t
		} else {
			y[i] = -t
		}
	}
	return y
}

// martingale returns delta - H(t) per row, with H the Nelson-Aalen
// cumulative hazard of the signed-time labels.
func martingale(signed []float64) []float64 {
	n := len(signed)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(signed[order[a]]) < math.Abs(signed[order[b]])
	})
	out := make([]float64, n)
	cum := 0.0
	for k := 0; k < n; {
		t := math.Abs(signed[order[k]])
		j, deaths := k, 0
		for j < n && math.Abs(signed[order[j]]) == t {
			if signed[order[j]] > 0 {
				deaths++
			}
			j++
		}
		cum += float64(deaths) / float64(n-k)
		for _, i := range order[k:j] {
			if signed[i] > 0 {
				out[i] = 1 - cum
			} else {
				out[i] = -cum
			}
		}
		k = j
	}
	return out
}

func bootstrap(x *mat.Dense, y []float64, rows []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	xb := mat.NewDense(len(rows), p, nil)
	yb := make([]float64, len(rows))
	for k, i := range rows {
		xb.SetRow(k, x.RawRowView(i))
		yb[k] = y[i]
	}
	return xb, yb
}

// solveRidge solves (X'X + penalty I) beta = X'(y - mean(y)).
func solveRidge(x *mat.Dense, y []float64, penalty float64) ([]float64, error) {
	n, p := x.Dims()
	mean := 0.0
	for _, v := range y {
		mean += v / float64(n)
	}
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-mean)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+penalty)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &xty); err != nil {
		return nil, fmt.Errorf("ridge solve: %w", err)
	}
	out := make([]float64, p)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, ErrNotFinite
		}
	}
	return out, nil
}

type ridgeFit struct {
	scale      scaling
	beta       []float64
	importance map[string]float64
}

func newRidgeFit(train *dataset.Dataset, s scaling, beta []float64) *ridgeFit {
	return &ridgeFit{scale: s, beta: beta, importance: importanceFor(train.Names(), s.names, beta)}
}

func (f *ridgeFit) PredictRisk(_ context.Context, test *dataset.Dataset) ([]float64, error) {
	if test.Len() == 0 {
		return []float64{}, nil
	}
	x, err := f.scale.standardized(test)
	if err != nil {
		return nil, err
	}
	var pred mat.VecDense
	pred.MulVec(x, mat.NewVecDense(len(f.beta), f.beta))
	out := make([]float64, test.Len())
	for i := range out {
		out[i] = pred.AtVec(i)
	}
	return out, nil
}

func (f *ridgeFit) Importance() (map[string]float64, error) { return f.importance, nil }
