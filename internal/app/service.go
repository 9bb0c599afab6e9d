// Package service runs Monte Carlo cross-validation evaluations and exposes
// their progress and results to the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/graftloss/internal/adapters/mq/queue"
	workerpool "github.com/okian/graftloss/internal/adapters/mq/worker"
	"github.com/okian/graftloss/internal/adapters/repository"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/internal/domain/aggregate"
	"github.com/okian/graftloss/internal/domain/concordance"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/dedupe"
	"github.com/okian/graftloss/internal/domain/evaluate"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/resample"
	"github.com/okian/graftloss/internal/domain/types"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/okian/graftloss/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Outcome is everything a finished run produced.
type Outcome struct {
	Plan        *resample.Plan
	Results     []model.Result
	Performance []aggregate.PerformanceRecord
	Importance  []aggregate.ImportanceRecord
	Summary     types.RunSummary
}

// Service evaluates a set of models on one dataset. A Service runs one
// evaluation at a time; its accessors are safe to call while it runs.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store       repository.Store
	subscribers []func(model.Result)
	logger      logger.Logger

	// Configuration
	repetitions      int
	trainFraction    float64
	seed             int64
	seedPinned       bool
	stratifyBy       string
	statusCol        string
	horizon          float64
	fitTimeout       time.Duration
	workerCount      int
	modelThreads     int
	cores            int
	queueSize        int
	maxPairwise      int
	subsampleSeed    int64
	medianImportance bool

	// Run state
	running   bool
	runID     string
	seedUsed  int64
	startedAt time.Time
	models    []string
	total     int
	workers   int
	queue     queue.Queue
	live      []model.Result
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	final     *types.RunSummary
	ranked    []aggregate.ImportanceRecord
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		store:         repository.NewMemStore(),
		logger:        logger.Discard(),
		repetitions:   20,
		trainFraction: 0.75,
		statusCol:     "status",
		horizon:       1,
		workerCount:   runtime.NumCPU(),
		modelThreads:  1,
		cores:         runtime.NumCPU(),
		queueSize:     1024,
		maxPairwise:   2000,
		subsampleSeed: 42,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run evaluates every model on every split of the plan and aggregates the
// results. Configuration and split problems fail fast; unit failures are
// folded into the results. Cancelling ctx stops dispatch, lets in-flight units
// finish and returns a partial Outcome.
func (s *Service) Run(ctx context.Context, ds *dataset.Dataset, models []model.Model) (*Outcome, error) {
	names, byName, err := indexModels(models)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ds); err != nil {
		return nil, err
	}
	if err := s.begin(names); err != nil {
		return nil, err
	}
	defer s.end()

	plan, resumed, err := s.loadOrCreatePlan(ctx, ds)
	if err != nil {
		return nil, err
	}

	workers, capped := config.CapWorkers(s.workerCount, s.modelThreads, s.cores)
	if capped {
		s.logger.Warn(ctx, "worker count capped by thread budget",
			logger.Int("requested", s.workerCount),
			logger.Int("workers", workers),
			logger.Int("model_threads", s.modelThreads),
			logger.Int("cores", s.cores))
	}
	for _, m := range models {
		if tl, ok := m.(model.ThreadLimiter); ok {
			tl.SetThreads(s.modelThreads)
		}
	}

	total := len(names) * len(plan.Splits)
	done, err := s.priorResults(ctx, byName, len(plan.Splits))
	if err != nil {
		return nil, err
	}
	deduper := dedupe.NewInMemoryDeduper(
		dedupe.WithExpected(total),
		dedupe.WithPreclaimed(unitsOf(done)...),
	)

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.mu.Lock()
	s.seedUsed = plan.Seed
	s.total = total
	s.workers = workers
	s.queue = q
	s.live = append(s.live, done...)
	s.mu.Unlock()
	s.skipped.Store(int64(len(done)))
	for range done {
		metrics.RecordUnitSkipped()
	}
	metrics.UpdateSplitsTotal(len(plan.Splits))
	metrics.UpdateUnitsTotal(total)
	metrics.UpdateProgress(s.ratio())

	s.logger.Info(ctx, "run started",
		logger.String("run_id", s.runID),
		logger.Any("seed", plan.Seed),
		logger.Bool("resumed", resumed),
		logger.Int("splits", len(plan.Splits)),
		logger.Int("models", len(names)),
		logger.Int("units", total),
		logger.Int("skipped", len(done)),
		logger.Int("workers", workers),
		logger.Int("model_threads", s.modelThreads))

	est := concordance.NewEstimator(
		concordance.WithMaxPairwise(s.maxPairwise),
		concordance.WithSubsampleSeed(s.subsampleSeed),
		concordance.WithLogger(s.logger.Named("concordance")),
	)
	s.logger.Debug(ctx, "concordance chain", logger.Any("tiers", est.Tiers()))
	ev := evaluate.NewEvaluator(
		evaluate.WithEstimator(est),
		evaluate.WithHorizon(s.horizon),
		evaluate.WithTimeout(s.fitTimeout),
		evaluate.WithLogger(s.logger.Named("evaluate")),
	)
	pool := workerpool.NewPool(q, func(hctx context.Context, u model.Unit) {
		s.record(hctx, ev.Evaluate(hctx, byName[u.Model], ds, plan.Splits[u.Split]))
	},
		workerpool.WithWorkerCount(workers),
		workerpool.WithName("mccv"),
		workerpool.WithLogger(s.logger),
	)

	var g errgroup.Group
	g.Go(func() error {
		defer func() { _ = q.Close() }()
		return s.dispatch(ctx, q, deduper, names, plan)
	})
	g.Go(func() error {
		return pool.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "worker pool drained", logger.Int("processed", int(pool.Processed())))

	return s.finish(ctx, plan, names), nil
}

func indexModels(models []model.Model) ([]string, map[string]model.Model, error) {
	if len(models) == 0 {
		return nil, nil, ErrNoModels
	}
	names := make([]string, 0, len(models))
	byName := make(map[string]model.Model, len(models))
	for _, m := range models {
		n := m.Name()
		if _, dup := byName[n]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateModel, n)
		}
		byName[n] = m
		names = append(names, n)
	}
	return names, byName, nil
}

func (s *Service) validate(ds *dataset.Dataset) error {
	switch {
	case ds == nil:
		return fmt.Errorf("%w: no dataset", ErrInvalidConfig)
	case s.repetitions < 1:
		return fmt.Errorf("%w: repetitions=%d (must be >= 1)", ErrInvalidConfig, s.repetitions)
	case !(s.trainFraction > 0 && s.trainFraction < 1):
		return fmt.Errorf("%w: train_fraction=%v (must be in (0, 1))", ErrInvalidConfig, s.trainFraction)
	case !(s.horizon > 0):
		return fmt.Errorf("%w: horizon=%v (must be > 0)", ErrInvalidConfig, s.horizon)
	case s.fitTimeout < 0:
		return fmt.Errorf("%w: fit_timeout=%s (must be >= 0)", ErrInvalidConfig, s.fitTimeout)
	}
	return ds.Validate()
}

func (s *Service) begin(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	s.runID = uuid.NewString()
	s.startedAt = time.Now().UTC()
	s.models = names
	s.total = 0
	s.live = nil
	s.final = nil
	s.ranked = nil
	s.completed.Store(0)
	s.failed.Store(0)
	s.skipped.Store(0)
	return nil
}

func (s *Service) end() {
	s.mu.Lock()
	s.running = false
	s.queue = nil
	s.mu.Unlock()
}

// loadOrCreatePlan reuses a stored plan that matches the run, or generates
// and stores a new one.
func (s *Service) loadOrCreatePlan(ctx context.Context, ds *dataset.Dataset) (*resample.Plan, bool, error) {
	stored, err := s.store.LoadPlan(ctx)
	switch {
	case err == nil:
		if err := stored.Compatible(ds.Len()); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrPlanMismatch, err)
		}
		if len(stored.Splits) != s.repetitions || stored.TrainFraction != s.trainFraction || (s.seedPinned && stored.Seed != s.seed) {
			return nil, false, fmt.Errorf("%w: stored %d splits at train_fraction=%v seed=%d, requested %d at %v seed=%d",
				ErrPlanMismatch, len(stored.Splits), stored.TrainFraction, stored.Seed, s.repetitions, s.trainFraction, s.seed)
		}
		return stored, true, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("load plan: %w", err)
	}

	strata, err := ds.Strata(s.stratifyBy, s.statusCol)
	if err != nil {
		return nil, false, err
	}
	var ropts []resample.Option
	if s.seedPinned {
		ropts = append(ropts, resample.WithSeed(s.seed))
	}
	plan, err := resample.New(ropts...).Generate(strata, s.repetitions, s.trainFraction)
	if err != nil {
		return nil, false, err
	}
	if err := s.store.SavePlan(ctx, plan); err != nil {
		return nil, false, fmt.Errorf("save plan: %w", err)
	}
	return plan, false, nil
}

// Plan returns the split plan Run would use for ds, generating and storing
// it when the store holds none. The bool reports whether it was reused.
func (s *Service) Plan(ctx context.Context, ds *dataset.Dataset) (*resample.Plan, bool, error) {
	if err := s.validate(ds); err != nil {
		return nil, false, err
	}
	return s.loadOrCreatePlan(ctx, ds)
}

// priorResults returns stored successful results for units of this run.
func (s *Service) priorResults(ctx context.Context, byName map[string]model.Model, splits int) ([]model.Result, error) {
	stored, err := s.store.Results(ctx)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	var out []model.Result
	for _, r := range stored {
		if _, ok := byName[r.Unit.Model]; ok && !r.Failed() && r.Unit.Split < splits {
			out = append(out, r)
		}
	}
	return out, nil
}

func unitsOf(rs []model.Result) []model.Unit {
	out := make([]model.Unit, len(rs))
	for i, r := range rs {
		out[i] = r.Unit
	}
	return out
}

// dispatch enqueues unclaimed units split by split, so a cancelled run has
// covered the same splits for every model.
func (s *Service) dispatch(ctx context.Context, q queue.Queue, d dedupe.Deduper, names []string, plan *resample.Plan) error {
	for _, sp := range plan.Splits {
		for _, name := range names {
			u := model.Unit{Model: name, Split: sp.Index}
			if !d.Claim(ctx, u) {
				continue
			}
			if err := q.EnqueueWait(ctx, u); err != nil {
				d.Release(ctx, u)
				if ctx.Err() != nil {
					s.logger.Warn(ctx, "dispatch stopped by cancellation", logger.String("next_unit", u.Key()))
					return nil
				}
				return fmt.Errorf("dispatch %s: %w", u.Key(), err)
			}
		}
	}
	return nil
}

// record stores one unit result and publishes it.
func (s *Service) record(ctx context.Context, res model.Result) {
	if err := s.store.PutResult(ctx, res); err != nil {
		metrics.RecordErrorByComponent("store", "put_result")
		s.logger.Error(ctx, "failed to store unit result",
			logger.String("unit", res.Unit.Key()),
			logger.Error(err))
	}
	if res.Failed() {
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}
	s.mu.Lock()
	s.live = append(s.live, res)
	subs := s.subscribers
	s.mu.Unlock()

	metrics.UpdateProgress(s.ratio())
	for _, fn := range subs {
		fn(res)
	}
}

// finish runs the aggregation once every dispatched unit has landed.
func (s *Service) finish(ctx context.Context, plan *resample.Plan, names []string) *Outcome {
	results := s.snapshot()
	partial := ctx.Err() != nil || len(results) < len(names)*len(plan.Splits)

	perf := aggregate.Summarize(results, names, len(plan.Splits))
	var aggOpts []aggregate.Option
	if s.medianImportance {
		aggOpts = append(aggOpts, aggregate.WithMedianAcrossSplits())
	}
	imp := aggregate.AggregateImportance(results, perf, aggOpts...)

	summary := s.summaryOf(perf, partial)
	summary.FinishedAt = time.Now().UTC()
	summary.Importance = types.ImportanceRows(imp)

	s.mu.Lock()
	s.final = &summary
	s.ranked = imp
	s.mu.Unlock()

	metrics.RecordRunFinished(partial)
	s.logger.Info(ctx, "run finished",
		logger.String("run_id", summary.RunID),
		logger.Bool("partial", partial),
		logger.Int("results", len(results)),
		logger.Int("failed", int(s.failed.Load())),
		logger.String("best_model", summary.BestModel),
		logger.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	return &Outcome{
		Plan:        plan,
		Results:     results,
		Performance: perf,
		Importance:  imp,
		Summary:     summary,
	}
}

func (s *Service) snapshot() []model.Result {
	s.mu.RLock()
	out := append([]model.Result(nil), s.live...)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Unit.Key() < out[j].Unit.Key() })
	return out
}

func (s *Service) summaryOf(perf []aggregate.PerformanceRecord, partial bool) types.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := types.RunSummary{
		RunID:         s.runID,
		Seed:          s.seedUsed,
		StartedAt:     s.startedAt,
		Partial:       partial,
		Splits:        s.repetitions,
		Models:        append([]string(nil), s.models...),
		Horizon:       s.horizon,
		TrainFraction: s.trainFraction,
		Performance:   types.PerformanceRows(perf),
	}
	if best, ok := aggregate.Best(perf); ok {
		sum.BestModel = best.Model
	}
	return sum
}

func (s *Service) ratio() float64 {
	s.mu.RLock()
	total := s.total
	s.mu.RUnlock()
	if total == 0 {
		return 0
	}
	return float64(s.completed.Load()+s.failed.Load()+s.skipped.Load()) / float64(total)
}

// Progress returns a snapshot of the current or last run.
func (s *Service) Progress(_ context.Context) types.Progress {
	s.mu.RLock()
	p := types.Progress{
		RunID: s.runID,
		Total: s.total,
		Done:  s.final != nil,
	}
	if s.final != nil {
		p.Partial = s.final.Partial
	}
	s.mu.RUnlock()
	p.Completed = int(s.completed.Load())
	p.Failed = int(s.failed.Load())
	p.Skipped = int(s.skipped.Load())
	p.Ratio = s.ratio()
	return p
}

// Summary returns the final run summary. While a run is in progress it
// returns the performance of the units finished so far, marked partial and
// without importance, since importance weights need every split.
func (s *Service) Summary(_ context.Context) (types.RunSummary, error) {
	s.mu.RLock()
	final, running, models := s.final, s.running, s.models
	s.mu.RUnlock()
	if final != nil {
		return *final, nil
	}
	if !running {
		return types.RunSummary{}, ErrNotReady
	}
	perf := aggregate.Summarize(s.snapshot(), models, s.repetitions)
	return s.summaryOf(perf, true), nil
}

// Importance returns the top limit features of the finished run; limit <= 0
// returns all of them.
func (s *Service) Importance(_ context.Context, limit int) ([]types.ImportanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.final == nil {
		return nil, ErrNotReady
	}
	return types.ImportanceRows(aggregate.TopN(s.ranked, limit)), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"running":      s.running,
		"runId":        s.runID,
		"workerCount":  s.workers,
		"modelThreads": s.modelThreads,
		"queueSize":    s.queueSize,
		"models":       len(s.models),
		"units":        s.total,
		"storedUnits":  s.store.Count(ctx),
	}
	if s.queue != nil {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
