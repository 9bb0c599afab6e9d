package repository_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/graftloss/internal/adapters/repository"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/resample"
	. "github.com/smartystreets/goconvey/convey"
)

func samplePlan() *resample.Plan {
	return &resample.Plan{
		Seed:          42,
		TrainFraction: 0.75,
		Rows:          4,
		Splits: []resample.Split{
			{Index: 0, Train: []int{0, 1, 3}, Test: []int{2}},
			{Index: 1, Train: []int{1, 2, 3}, Test: []int{0}},
		},
	}
}

func result(m string, split int, fail bool) model.Result {
	r := model.Result{
		Unit:            model.Unit{Model: m, Split: split},
		TimeDependent:   0.7,
		TimeIndependent: 0.68,
		Elapsed:         3 * time.Millisecond,
		Importance:      map[string]float64{"age": 0.4},
	}
	if fail {
		r.TimeDependent, r.TimeIndependent = math.NaN(), math.NaN()
		r.FailureKind = model.FailureTimeout
		r.Importance = nil
	}
	return r
}

func exerciseStore(newStore func() repository.Store) {
	ctx := context.Background()

	Convey("When the store is empty", func() {
		s := newStore()
		defer s.Close()

		_, err := s.LoadPlan(ctx)
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		So(s.Count(ctx), ShouldEqual, 0)
	})

	Convey("When saving a plan and results", func() {
		s := newStore()
		defer s.Close()

		So(s.SavePlan(ctx, samplePlan()), ShouldBeNil)
		So(s.PutResult(ctx, result("ridge", 1, false)), ShouldBeNil)
		So(s.PutResult(ctx, result("coxph", 0, false)), ShouldBeNil)
		So(s.PutResult(ctx, result("coxph", 1, true)), ShouldBeNil)

		Convey("Then the plan round-trips", func() {
			plan, err := s.LoadPlan(ctx)
			So(err, ShouldBeNil)
			So(plan, ShouldResemble, samplePlan())
		})

		Convey("And results come back ordered by unit", func() {
			rs, err := s.Results(ctx)
			So(err, ShouldBeNil)
			So(rs, ShouldHaveLength, 3)
			So(rs[0].Unit, ShouldResemble, model.Unit{Model: "coxph", Split: 0})
			So(rs[1].Unit, ShouldResemble, model.Unit{Model: "coxph", Split: 1})
			So(rs[2].Unit, ShouldResemble, model.Unit{Model: "ridge", Split: 1})
			So(math.IsNaN(rs[1].TimeDependent), ShouldBeTrue)
			So(rs[0].Importance, ShouldResemble, map[string]float64{"age": 0.4})
			So(s.Count(ctx), ShouldEqual, 3)
		})

		Convey("And failed units are not reported as completed", func() {
			done, err := s.Completed(ctx)
			So(err, ShouldBeNil)
			So(done, ShouldHaveLength, 2)
			for _, u := range done {
				So(u, ShouldNotResemble, model.Unit{Model: "coxph", Split: 1})
			}
		})

		Convey("And a retried unit replaces the failure", func() {
			So(s.PutResult(ctx, result("coxph", 1, false)), ShouldBeNil)
			So(s.Count(ctx), ShouldEqual, 3)
			done, err := s.Completed(ctx)
			So(err, ShouldBeNil)
			So(done, ShouldHaveLength, 3)
		})
	})

	Convey("When the store is closed", func() {
		s := newStore()
		So(s.Close(), ShouldBeNil)
		So(errors.Is(s.PutResult(ctx, result("x", 0, false)), repository.ErrClosed), ShouldBeTrue)
	})
}

func TestMemStore(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		exerciseStore(func() repository.Store { return repository.NewMemStore() })
	})
}

func TestBadgerStore(t *testing.T) {
	Convey("Given an in-memory badger store", t, func() {
		exerciseStore(func() repository.Store {
			s, err := repository.OpenBadgerStore("", repository.WithInMemory())
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given a badger store on disk", t, func() {
		dir := t.TempDir()
		ctx := context.Background()

		s, err := repository.OpenBadgerStore(dir, repository.WithSyncWrites(true))
		So(err, ShouldBeNil)
		So(s.SavePlan(ctx, samplePlan()), ShouldBeNil)
		So(s.PutResult(ctx, result("coxph", 0, false)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			again, err := repository.OpenBadgerStore(dir)
			So(err, ShouldBeNil)
			defer again.Close()

			Convey("Then the plan and results survive", func() {
				plan, err := again.LoadPlan(ctx)
				So(err, ShouldBeNil)
				So(plan.Seed, ShouldEqual, 42)
				So(again.Count(ctx), ShouldEqual, 1)
				done, err := again.Completed(ctx)
				So(err, ShouldBeNil)
				So(done, ShouldResemble, []model.Unit{{Model: "coxph", Split: 0}})
			})
		})
	})

	Convey("Given no path and no in-memory option", t, func() {
		_, err := repository.OpenBadgerStore("")
		So(err, ShouldNotBeNil)
	})
}
