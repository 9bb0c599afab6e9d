package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/graftloss/internal/adapters/repository"
	"github.com/okian/graftloss/internal/adapters/survival"
	service "github.com/okian/graftloss/internal/app"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/synthcohort"
	. "github.com/smartystreets/goconvey/convey"
)

func cohort(t *testing.T, n int) (*dataset.Dataset, float64) {
	t.Helper()
	cfg := synthcohort.DefaultConfig()
	cfg.N = n
	ds, err := synthcohort.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := synthcohort.MedianDuration(ds)
	if err != nil {
		t.Fatal(err)
	}
	return ds, h
}

func truth() survival.Linear {
	return survival.Linear{Coefficients: synthcohort.DefaultConfig().Coefficients()}
}

// slowModel delays every fit.
type slowModel struct {
	survival.Linear
	delay time.Duration
}

func (m slowModel) Name() string { return "slow" }

func (m slowModel) Fit(ctx context.Context, train *dataset.Dataset) (model.Fitted, error) {
	time.Sleep(m.delay)
	return m.Linear.Fit(ctx, train)
}

// threadModel records the thread budget it was given.
type threadModel struct {
	survival.Linear
	mu      sync.Mutex
	threads int
}

func (m *threadModel) Name() string { return "threaded" }

func (m *threadModel) SetThreads(n int) {
	m.mu.Lock()
	m.threads = n
	m.mu.Unlock()
}

func TestService_Validation(t *testing.T) {
	Convey("Given a service", t, func() {
		ds, h := cohort(t, 60)
		ctx := context.Background()

		Convey("When no models are given", func() {
			_, err := service.New(service.WithHorizon(h)).Run(ctx, ds, nil)
			So(errors.Is(err, service.ErrNoModels), ShouldBeTrue)
		})

		Convey("When two models share a name", func() {
			_, err := service.New(service.WithHorizon(h)).Run(ctx, ds, []model.Model{survival.Null{}, survival.Null{Seed: 3}})
			So(errors.Is(err, service.ErrDuplicateModel), ShouldBeTrue)
		})

		Convey("When the configuration is out of range", func() {
			for _, opt := range []service.Option{
				service.WithRepetitions(0),
				service.WithTrainFraction(1),
				service.WithHorizon(0),
				service.WithFitTimeout(-time.Second),
			} {
				_, err := service.New(service.WithHorizon(h), opt).Run(ctx, ds, []model.Model{survival.Null{}})
				So(errors.Is(err, service.ErrInvalidConfig), ShouldBeTrue)
			}
		})

		Convey("When the dataset is too small to stratify", func() {
			small, _ := cohort(t, 12)
			_, err := service.New(service.WithHorizon(h)).Run(ctx, small, []model.Model{survival.Null{}})
			So(err, ShouldNotBeNil)
		})

		Convey("When nothing has run yet", func() {
			svc := service.New()
			_, err := svc.Summary(ctx)
			So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
			_, err = svc.Importance(ctx, 5)
			So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
			So(svc.Progress(ctx).Done, ShouldBeFalse)
		})
	})
}

func TestService_PartialFailure(t *testing.T) {
	Convey("Given three models where one always fails", t, func() {
		ds, h := cohort(t, 120)
		var mu sync.Mutex
		var streamed int
		svc := service.New(
			service.WithRepetitions(10),
			service.WithSeed(11),
			service.WithHorizon(h),
			service.WithWorkerCount(3),
			service.WithSubscriber(func(model.Result) {
				mu.Lock()
				streamed++
				mu.Unlock()
			}),
		)
		models := []model.Model{truth(), survival.Null{Seed: 1}, survival.Failing{}}

		Convey("When the run completes", func() {
			out, err := svc.Run(context.Background(), ds, models)
			So(err, ShouldBeNil)

			Convey("Then every unit has a result and the failures are counted", func() {
				So(out.Results, ShouldHaveLength, 30)
				So(out.Summary.Partial, ShouldBeFalse)
				byModel := map[string]int{}
				for _, r := range out.Performance {
					byModel[r.Model] = r.NValid
					So(r.NTotal, ShouldEqual, 10)
					if r.Model == "failing" {
						So(r.NFailed, ShouldEqual, 10)
					}
				}
				So(byModel, ShouldResemble, map[string]int{"linear": 10, "null": 10, "failing": 0})
			})

			Convey("And the best model and importance come from the working models", func() {
				So(out.Summary.BestModel, ShouldEqual, "linear")
				sum := 0.0
				for _, r := range out.Importance {
					sum += r.Importance
				}
				So(sum, ShouldAlmostEqual, 1, 1e-9)
				So(out.Importance[0].Feature, ShouldEqual, "age")
			})

			Convey("And progress and streaming saw every unit", func() {
				p := svc.Progress(context.Background())
				So(p.Done, ShouldBeTrue)
				So(p.Completed, ShouldEqual, 20)
				So(p.Failed, ShouldEqual, 10)
				So(p.Ratio, ShouldEqual, 1)
				mu.Lock()
				So(streamed, ShouldEqual, 30)
				mu.Unlock()
			})

			Convey("And the read accessors serve the final tables", func() {
				sum, err := svc.Summary(context.Background())
				So(err, ShouldBeNil)
				So(sum.RunID, ShouldEqual, out.Summary.RunID)
				So(sum.Seed, ShouldEqual, 11)
				top, err := svc.Importance(context.Background(), 2)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
				So(top[0].Rank, ShouldEqual, 1)
			})
		})
	})
}

func TestService_ThreadBudget(t *testing.T) {
	Convey("Given more requested workers than the core budget allows", t, func() {
		ds, h := cohort(t, 60)
		m := &threadModel{Linear: truth()}
		svc := service.New(
			service.WithRepetitions(2),
			service.WithHorizon(h),
			service.WithWorkerCount(8),
			service.WithModelThreads(2),
			service.WithCores(4),
		)

		Convey("When running", func() {
			_, err := svc.Run(context.Background(), ds, []model.Model{m})
			So(err, ShouldBeNil)

			Convey("Then workers x threads stays within the cores", func() {
				So(svc.GetStats()["workerCount"], ShouldEqual, 2)
				m.mu.Lock()
				So(m.threads, ShouldEqual, 2)
				m.mu.Unlock()
			})
		})
	})
}

func TestService_CancelAndResume(t *testing.T) {
	Convey("Given a slow model and a shared store", t, func() {
		ds, h := cohort(t, 60)
		store := repository.NewMemStore()
		slow := slowModel{Linear: truth(), delay: 20 * time.Millisecond}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := service.New(
			service.WithStore(store),
			service.WithRepetitions(12),
			service.WithSeed(5),
			service.WithHorizon(h),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithSubscriber(func(model.Result) { cancel() }),
		)

		Convey("When the run is cancelled after the first unit", func() {
			out, err := first.Run(ctx, ds, []model.Model{slow})
			So(err, ShouldBeNil)

			Convey("Then the outcome is partial but keeps finished units", func() {
				So(out.Summary.Partial, ShouldBeTrue)
				So(len(out.Results), ShouldBeGreaterThanOrEqualTo, 1)
				So(len(out.Results), ShouldBeLessThan, 12)
				for _, r := range out.Results {
					So(r.Failed(), ShouldBeFalse)
				}
			})

			Convey("And a resumed run finishes only the remaining units", func() {
				second := service.New(
					service.WithStore(store),
					service.WithRepetitions(12),
					service.WithSeed(5),
					service.WithHorizon(h),
				)
				again, err := second.Run(context.Background(), ds, []model.Model{slow})
				So(err, ShouldBeNil)
				So(again.Summary.Partial, ShouldBeFalse)
				So(again.Results, ShouldHaveLength, 12)
				So(second.Progress(context.Background()).Skipped, ShouldEqual, len(out.Results))
				So(again.Plan.Seed, ShouldEqual, 5)
			})

			Convey("And a run pinned to seed zero does not reuse the seed-5 plan", func() {
				other := service.New(service.WithStore(store), service.WithRepetitions(12), service.WithSeed(0), service.WithHorizon(h))
				_, err := other.Run(context.Background(), ds, []model.Model{slow})
				So(errors.Is(err, service.ErrPlanMismatch), ShouldBeTrue)
			})

			Convey("And a run with a different split count is rejected", func() {
				other := service.New(service.WithStore(store), service.WithRepetitions(3), service.WithHorizon(h))
				_, err := other.Run(context.Background(), ds, []model.Model{slow})
				So(errors.Is(err, service.ErrPlanMismatch), ShouldBeTrue)
			})
		})
	})
}

func TestService_SeedZeroIsPinnable(t *testing.T) {
	Convey("Given two fresh stores and a seed pinned to zero", t, func() {
		ds, h := cohort(t, 60)
		run := func() *service.Outcome {
			svc := service.New(
				service.WithStore(repository.NewMemStore()),
				service.WithRepetitions(4),
				service.WithSeed(0),
				service.WithHorizon(h),
			)
			out, err := svc.Run(context.Background(), ds, []model.Model{truth()})
			So(err, ShouldBeNil)
			return out
		}

		Convey("When both run", func() {
			a, b := run(), run()

			Convey("Then both plans record seed zero and the same splits", func() {
				So(a.Plan.Seed, ShouldEqual, 0)
				So(b.Plan.Seed, ShouldEqual, 0)
				So(a.Plan.Splits, ShouldResemble, b.Plan.Splits)
				So(a.Summary.Seed, ShouldEqual, 0)
			})
		})
	})
}
