package survival

import (
	"context"
	"testing"

	"github.com/okian/graftloss/internal/synthcohort"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCoxPH_Coefficients(t *testing.T) {
	Convey("Given a cohort with a strong positive age effect", t, func() {
		cfg := synthcohort.DefaultConfig()
		cfg.N = 400
		ds, err := synthcohort.Generate(context.Background(), cfg, nil)
		So(err, ShouldBeNil)

		Convey("When fitting the proportional hazards model", func() {
			f, err := CoxPH{}.Fit(context.Background(), ds)
			So(err, ShouldBeNil)
			fit := f.(*coxFit)
			coefs := make(map[string]float64, len(fit.names))
			for j, n := range fit.names {
				coefs[n] = fit.beta[j]
			}

			Convey("Then the age coefficient is recovered with the right sign", func() {
				So(coefs["age"], ShouldBeGreaterThan, 0.4)
				So(coefs["age"], ShouldBeLessThan, 1.6)
			})
		})
	})
}
