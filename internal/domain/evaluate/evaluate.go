// Package evaluate runs one (model, split) unit: fit on the training rows,
// score the held-out rows and estimate concordance.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/graftloss/internal/domain/concordance"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/resample"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/okian/graftloss/pkg/metrics"
)

// Evaluator evaluates units. It holds no per-unit state and is safe for
// concurrent use.
type Evaluator struct {
	estimator *concordance.Estimator
	horizon   float64
	timeout   time.Duration
	log       logger.Logger
}

// NewEvaluator creates an Evaluator with a default concordance chain, horizon 1
// and no timeout.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		estimator: concordance.NewEstimator(),
		horizon:   1,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome struct {
	risk       []float64
	importance map[string]float64
	elapsed    time.Duration
	err        error
}

// Evaluate runs m on split sp of ds. It never returns an error: failures are
// folded into the Result with NaN concordance and a FailureKind.
func (e *Evaluator) Evaluate(ctx context.Context, m model.Model, ds *dataset.Dataset, sp resample.Split) model.Result {
	unit := model.Unit{Model: m.Name(), Split: sp.Index}
	train := ds.Subset(sp.Train)
	test := ds.Subset(sp.Test)

	res := model.Result{
		Unit:            unit,
		TimeDependent:   math.NaN(),
		TimeIndependent: math.NaN(),
		NTrain:          train.Len(),
		NTest:           test.Len(),
	}

	uctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		done <- e.fitPredict(uctx, m, train, test)
	}()

	var out outcome
	select {
	case out = <-done:
		if out.err != nil && errors.Is(uctx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w: exceeded %s: %v", model.ErrTimeout, e.timeout, out.err)
		}
	case <-uctx.Done():
		out = outcome{elapsed: time.Since(start)}
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w: exceeded %s", model.ErrTimeout, e.timeout)
		} else {
			out.err = fmt.Errorf("%w: %v", model.ErrTimeout, uctx.Err())
		}
	}
	res.Elapsed = out.elapsed

	if out.err != nil {
		res.FailureKind = model.KindOf(out.err)
		if res.FailureKind == model.FailureTimeout && !errors.Is(uctx.Err(), context.DeadlineExceeded) {
			res.FailureKind = model.FailureCancelled
		}
		res.Err = out.err.Error()
		e.log.Error(ctx, "unit failed",
			logger.String("model", unit.Model),
			logger.Int("split", unit.Split),
			logger.String("kind", string(res.FailureKind)),
			logger.Error(out.err),
		)
		metrics.RecordUnitFailed(unit.Model, string(res.FailureKind))
		return res
	}

	est := e.estimator.Estimate(ctx, concordance.Input{
		Durations: test.Durations,
		Events:    test.Events,
		Risk:      out.risk,
	}, e.horizon)
	res.TimeDependent = est.TimeDependent
	res.TimeIndependent = est.TimeIndependent
	res.Importance = out.importance

	metrics.RecordUnitCompleted(unit.Model)
	metrics.RecordUnitDuration(unit.Model, float64(res.Elapsed.Microseconds())/1000)
	e.log.Debug(ctx, "unit done",
		logger.String("model", unit.Model),
		logger.Int("split", unit.Split),
		logger.Float64("cindex_td", res.TimeDependent),
		logger.Float64("cindex_ti", res.TimeIndependent),
		logger.String("tier", est.Tier),
		logger.Duration("elapsed", res.Elapsed),
	)
	return res
}

// fitPredict runs the model calls and turns panics into ErrPanic.
func (e *Evaluator) fitPredict(ctx context.Context, m model.Model, train, test *dataset.Dataset) (out outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: %v", model.ErrPanic, r)}
		}
		out.elapsed = time.Since(start)
	}()

	fitted, err := m.Fit(ctx, train)
	if err != nil {
		return outcome{err: fmt.Errorf("%w: %v", model.ErrFit, err)}
	}
	risk, err := fitted.PredictRisk(ctx, test)
	if err != nil {
		return outcome{err: fmt.Errorf("%w: %v", model.ErrPredict, err)}
	}
	if len(risk) != test.Len() {
		return outcome{err: fmt.Errorf("%w: %d scores for %d rows", model.ErrPredict, len(risk), test.Len())}
	}

	out.risk = risk
	if im, ok := fitted.(model.Importancer); ok {
		imp, err := im.Importance()
		if err != nil {
			e.log.Warn(ctx, "importance unavailable", logger.String("model", m.Name()), logger.Error(err))
			return out
		}
		out.importance = make(map[string]float64, len(imp))
		for k, v := range imp {
			out.importance[k] = v
		}
	}
	return out
}
