package aggregate_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/graftloss/internal/domain/aggregate"
	"github.com/okian/graftloss/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func ok(m string, split int, td, ti float64, imp map[string]float64) model.Result {
	return model.Result{
		Unit:            model.Unit{Model: m, Split: split},
		TimeDependent:   td,
		TimeIndependent: ti,
		Elapsed:         10 * time.Millisecond,
		Importance:      imp,
	}
}

func failed(m string, split int) model.Result {
	return model.Result{
		Unit:            model.Unit{Model: m, Split: split},
		TimeDependent:   math.NaN(),
		TimeIndependent: math.NaN(),
		FailureKind:     model.FailureFit,
	}
}

func perf(name string, td, ti float64) aggregate.PerformanceRecord {
	return aggregate.PerformanceRecord{
		Model:           name,
		TimeDependent:   aggregate.Stat{Mean: td},
		TimeIndependent: aggregate.Stat{Mean: ti},
	}
}

func TestSummarize(t *testing.T) {
	Convey("Given results for three models", t, func() {
		var results []model.Result
		for s := 0; s < 10; s++ {
			results = append(results,
				ok("good", s, 0.7+0.01*float64(s), 0.72, nil),
				failed("broken", s),
			)
		}
		results = append(results,
			ok("sparse", 0, 0.6, 0.6, nil),
			ok("sparse", 1, math.NaN(), 0.55, nil),
		)

		Convey("When summarizing", func() {
			summary := aggregate.Summarize(results, []string{"good", "broken", "sparse", "idle"}, 10)

			Convey("Then rows are ordered by time-dependent mean", func() {
				So(summary, ShouldHaveLength, 4)
				So(summary[0].Model, ShouldEqual, "good")
				So(summary[1].Model, ShouldEqual, "sparse")
				So(summary[2].Model, ShouldEqual, "broken")
				So(summary[3].Model, ShouldEqual, "idle")
			})

			Convey("And the healthy model is fully populated", func() {
				g := summary[0]
				So(g.NValid, ShouldEqual, 10)
				So(g.NTotal, ShouldEqual, 10)
				So(g.TimeDependent.Mean, ShouldAlmostEqual, 0.745, 1e-12)
				So(g.TimeDependent.SD, ShouldBeGreaterThan, 0)
				So(g.TimeDependent.CILow, ShouldAlmostEqual, 0.7, 1e-12)
				So(g.TimeDependent.CIHigh, ShouldAlmostEqual, 0.79, 1e-12)
				So(g.TimeIndependent.SD, ShouldAlmostEqual, 0, 1e-12)
				So(g.MeanElapsed, ShouldEqual, 10*time.Millisecond)
			})

			Convey("And the failing model shows zero valid splits and NaN stats", func() {
				b := summary[2]
				So(b.NValid, ShouldEqual, 0)
				So(b.NFailed, ShouldEqual, 10)
				So(math.IsNaN(b.TimeDependent.Mean), ShouldBeTrue)
				So(math.IsNaN(b.TimeIndependent.CILow), ShouldBeTrue)
			})

			Convey("And a single defined value has no SD or CI", func() {
				s := summary[1]
				So(s.NValid, ShouldEqual, 2)
				So(s.TimeDependent.N, ShouldEqual, 1)
				So(s.TimeDependent.Mean, ShouldEqual, 0.6)
				So(math.IsNaN(s.TimeDependent.SD), ShouldBeTrue)
				So(math.IsNaN(s.TimeDependent.CIHigh), ShouldBeTrue)
				So(s.TimeIndependent.N, ShouldEqual, 2)
				So(s.TimeIndependent.Mean, ShouldAlmostEqual, 0.575, 1e-12)
			})

			Convey("And Best picks the top defined mean", func() {
				best, found := aggregate.Best(summary)
				So(found, ShouldBeTrue)
				So(best.Model, ShouldEqual, "good")
			})
		})

		Convey("When nothing is defined", func() {
			_, found := aggregate.Best(aggregate.Summarize([]model.Result{failed("x", 0)}, nil, 1))
			So(found, ShouldBeFalse)
		})
	})
}

func TestAggregateImportance(t *testing.T) {
	Convey("Given two models with hand-computable importances", t, func() {
		summary := []aggregate.PerformanceRecord{perf("a", 0.8, 0.8), perf("b", 0.6, 0.6)}
		results := []model.Result{
			ok("a", 0, 0.8, 0.8, map[string]float64{"x": 3, "y": 1}),
			ok("b", 0, 0.6, 0.6, map[string]float64{"x": -1, "y": 2}),
			ok("a", 1, 0.8, 0.8, map[string]float64{"x": 0, "y": 0}),
			ok("b", 1, 0.6, 0.6, nil),
		}

		Convey("When aggregating with the mean", func() {
			recs := aggregate.AggregateImportance(results, summary)

			Convey("Then weights, clamping and uniform fallback combine as expected", func() {
				// split0: a {1.5, 0.5}, b {0, 1.5}; split1: a {1, 1}
				So(recs, ShouldHaveLength, 2)
				So(recs[0].Feature, ShouldEqual, "y")
				So(recs[0].Importance, ShouldAlmostEqual, 1.5/2.75, 1e-12)
				So(recs[1].Feature, ShouldEqual, "x")
				So(recs[1].Importance, ShouldAlmostEqual, 1.25/2.75, 1e-12)
			})
		})

		Convey("When a model has no defined performance", func() {
			summary = append(summary, perf("c", math.NaN(), math.NaN()))
			results = append(results, ok("c", 0, math.NaN(), math.NaN(), map[string]float64{"z": 10}))
			recs := aggregate.AggregateImportance(results, summary)

			Convey("Then it contributes nothing", func() {
				for _, r := range recs {
					So(r.Feature, ShouldNotEqual, "z")
				}
			})
		})

		Convey("When no time-dependent mean is defined", func() {
			recs := aggregate.AggregateImportance(results, []aggregate.PerformanceRecord{
				perf("a", math.NaN(), 0.9), perf("b", math.NaN(), 0.9),
			})

			Convey("Then time-independent means weight the models", func() {
				So(recs, ShouldHaveLength, 2)
				So(recs[0].Importance+recs[1].Importance, ShouldAlmostEqual, 1, 1e-12)
			})
		})

		Convey("When no model has importance", func() {
			So(aggregate.AggregateImportance([]model.Result{ok("a", 0, 0.8, 0.8, nil)}, summary), ShouldBeNil)
		})
	})

	Convey("Given three splits", t, func() {
		summary := []aggregate.PerformanceRecord{perf("a", 0.7, 0.7)}
		results := []model.Result{
			ok("a", 0, 0.7, 0.7, map[string]float64{"x": 1, "y": 0}),
			ok("a", 1, 0.7, 0.7, map[string]float64{"x": 1, "y": 0}),
			ok("a", 2, 0.7, 0.7, map[string]float64{"x": 0, "y": 1}),
		}

		Convey("When combining with the median", func() {
			recs := aggregate.AggregateImportance(results, summary, aggregate.WithMedianAcrossSplits())

			Convey("Then the outlying split is ignored", func() {
				So(recs[0].Feature, ShouldEqual, "x")
				So(recs[0].Importance, ShouldEqual, 1)
				So(recs[1].Importance, ShouldEqual, 0)
			})
		})
	})
}

func TestTopN(t *testing.T) {
	Convey("Given ranked records", t, func() {
		recs := []aggregate.ImportanceRecord{{"a", 0.5}, {"b", 0.3}, {"c", 0.2}}
		So(aggregate.TopN(recs, 2), ShouldHaveLength, 2)
		So(aggregate.TopN(recs, 0), ShouldHaveLength, 3)
		So(aggregate.TopN(recs, 10), ShouldHaveLength, 3)
	})
}

func TestImportanceUnitSum(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	features := []string{"age", "bmi", "egfr", "vad", "ecmo", "pra"}
	for trial := 0; trial < 30; trial++ {
		var results []model.Result
		var summary []aggregate.PerformanceRecord
		for m := 0; m < 1+rng.Intn(4); m++ {
			name := string(rune('a' + m))
			summary = append(summary, perf(name, 0.5+0.4*rng.Float64(), 0.6))
			for s := 0; s < 1+rng.Intn(8); s++ {
				imp := make(map[string]float64)
				for _, f := range features[:1+rng.Intn(len(features))] {
					imp[f] = rng.NormFloat64()
				}
				results = append(results, ok(name, s, 0.7, 0.7, imp))
			}
		}
		recs := aggregate.AggregateImportance(results, summary)
		total := 0.0
		for _, r := range recs {
			assert.GreaterOrEqual(t, r.Importance, 0.0)
			total += r.Importance
		}
		assert.InDelta(t, 1.0, total, 1e-9, "trial %d", trial)
	}
}
