package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/graftloss/internal/adapters/http/api"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockRun struct {
	progress   types.Progress
	summary    types.RunSummary
	summaryErr error
	rows       []types.ImportanceRow
	rowsErr    error
	lastLimit  int
}

func (m *mockRun) Progress(context.Context) types.Progress { return m.progress }

func (m *mockRun) Summary(context.Context) (types.RunSummary, error) {
	return m.summary, m.summaryErr
}

func (m *mockRun) Importance(_ context.Context, limit int) ([]types.ImportanceRow, error) {
	m.lastLimit = limit
	if m.rowsErr != nil {
		return nil, m.rowsErr
	}
	if limit > 0 && limit < len(m.rows) {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"running": false, "workerCount": 4}
}

func newMux(run *mockRun) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(run, mockStats{}).Register(context.Background(), mux)
	return mux
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given the results API", t, func() {
		mux := newMux(&mockRun{})

		Convey("When probing liveness", func() {
			rec := get(mux, "/healthz")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("When scraping metrics after a request", func() {
			get(mux, "/healthz")
			rec := get(mux, "/metrics")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("When posting to a read-only route", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/summary", strings.NewReader("{}")))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When reading stats", func() {
			rec := get(mux, "/stats")
			var body map[string]interface{}
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body["workerCount"], ShouldEqual, 4)
		})
	})
}

func TestRunRoutes(t *testing.T) {
	Convey("Given a run in progress", t, func() {
		run := &mockRun{
			progress: types.Progress{RunID: "r1", Total: 30, Completed: 12, Failed: 3, Ratio: 0.5},
			summary:  types.RunSummary{RunID: "r1", Partial: true, Performance: []types.PerformanceRow{{Model: "coxph", TDMean: model.NullableFloat(0.71), NValidSplits: 4}}},
			rowsErr:  types.ErrNotReady,
		}
		mux := newMux(run)

		Convey("When reading progress", func() {
			rec := get(mux, "/progress")
			var p types.Progress
			So(json.Unmarshal(rec.Body.Bytes(), &p), ShouldBeNil)
			So(p, ShouldResemble, run.progress)
		})

		Convey("When reading the interim summary", func() {
			rec := get(mux, "/summary")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var s types.RunSummary
			So(json.Unmarshal(rec.Body.Bytes(), &s), ShouldBeNil)
			So(s.Partial, ShouldBeTrue)
			So(*s.Performance[0].TDMean, ShouldEqual, 0.71)
			So(rec.Body.String(), ShouldContainSubstring, `"cindex_time_dependent_sd":null`)
		})

		Convey("When asking for importance before the run ends", func() {
			rec := get(mux, "/importance")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Body.String(), ShouldContainSubstring, "not_ready")
		})
	})

	Convey("Given a finished run", t, func() {
		run := &mockRun{rows: []types.ImportanceRow{
			{Rank: 1, Feature: "age", Importance: 0.6},
			{Rank: 2, Feature: "marker", Importance: 0.3},
			{Rank: 3, Feature: "sex", Importance: 0.1},
		}}
		mux := newMux(run)

		Convey("When requesting the top features", func() {
			rec := get(mux, "/importance?limit=2")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var rows []types.ImportanceRow
			So(json.Unmarshal(rec.Body.Bytes(), &rows), ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Feature, ShouldEqual, "age")
			So(run.lastLimit, ShouldEqual, 2)
		})

		Convey("When requesting every feature", func() {
			rec := get(mux, "/importance")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(run.lastLimit, ShouldEqual, 0)
		})

		Convey("When the limit is malformed or too large", func() {
			bad := get(mux, "/importance?limit=abc")
			So(bad.Code, ShouldEqual, http.StatusBadRequest)
			So(bad.Body.String(), ShouldContainSubstring, "invalid syntax")
			So(get(mux, "/importance?limit=0").Code, ShouldEqual, http.StatusBadRequest)
			rec := get(mux, "/importance?limit=100000")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})

		Convey("When the reader fails", func() {
			run.summaryErr = errors.New("store closed")
			rec := get(mux, "/summary")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given an operation error", t, func() {
		cause := errors.New("strconv: bad digit")
		err := api.WrapKind("api.get_importance", api.ErrBadRequest, cause)

		Convey("Then both the kind and the cause are matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.get_importance")
			So(errors.Is(api.NewKind("op", api.ErrLimitExceeded), api.ErrLimitExceeded), ShouldBeTrue)
			So(errors.Is(api.Wrap("op", cause), cause), ShouldBeTrue)
		})
	})
}
