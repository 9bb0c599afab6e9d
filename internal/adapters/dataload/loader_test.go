package dataload_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/graftloss/internal/adapters/dataload"
	"github.com/okian/graftloss/internal/domain/dataset"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
)

const cohortCSV = `time,status,age,stage,site
5,1,60,II,a
8,0,,I,b
3,1,70,III,
12,0,50,I,a
x,1,40,I,a
`

func TestReadCSV(t *testing.T) {
	Convey("Given a CSV cohort with missing and categorical cells", t, func() {
		l := dataload.New("time", "status")

		Convey("When reading it", func() {
			ds, rep, err := l.ReadCSV(strings.NewReader(cohortCSV))
			So(err, ShouldBeNil)

			Convey("Then unparseable times are dropped", func() {
				So(rep.DroppedRows, ShouldEqual, 1)
				So(rep.Rows, ShouldEqual, 4)
				So(ds.Durations, ShouldResemble, []float64{5, 8, 3, 12})
				So(ds.Events, ShouldResemble, []int{1, 0, 1, 0})
			})

			Convey("And numeric gaps take the column median", func() {
				age, err := ds.Column("age")
				So(err, ShouldBeNil)
				So(age.Values, ShouldResemble, []float64{60, 60, 70, 50})
				So(rep.Imputed["age"], ShouldEqual, 1)
			})

			Convey("And categorical columns become indicators against the first level", func() {
				So(ds.Names(), ShouldResemble, []string{"age", "stage_II", "stage_III", "site_b"})
				s2, _ := ds.Column("stage_II")
				So(s2.Values, ShouldResemble, []float64{1, 0, 0, 0})
				sb, _ := ds.Column("site_b")
				So(sb.Values, ShouldResemble, []float64{0, 1, 0, 0})
				So(rep.Encoded["stage"], ShouldResemble, []string{"II", "III"})
				So(rep.Imputed["site"], ShouldEqual, 1)
			})
		})

		Convey("When restricting covariates", func() {
			ds, _, err := dataload.New("time", "status", dataload.WithCovariates("age")).ReadCSV(strings.NewReader(cohortCSV))
			So(err, ShouldBeNil)
			So(ds.Names(), ShouldResemble, []string{"age"})
		})

		Convey("When a named column is absent", func() {
			_, _, err := dataload.New("days", "status").ReadCSV(strings.NewReader(cohortCSV))
			So(errors.Is(err, dataset.ErrColumnNotFound), ShouldBeTrue)
			_, _, err = dataload.New("time", "status", dataload.WithCovariates("bmi")).ReadCSV(strings.NewReader(cohortCSV))
			So(errors.Is(err, dataset.ErrColumnNotFound), ShouldBeTrue)
		})

		Convey("When the status column is not binary", func() {
			_, _, err := l.ReadCSV(strings.NewReader("time,status,age\n1,2,30\n"))
			So(errors.Is(err, dataload.ErrInvalidCell), ShouldBeTrue)
		})

		Convey("When a time cell is NaN", func() {
			ds, rep, err := dataload.New("time", "status").ReadCSV(strings.NewReader("time,status,x\n1,1,0.5\nNaN,0,0.2\n3,0,0.1\n"))
			So(err, ShouldBeNil)
			So(rep.DroppedRows, ShouldEqual, 1)
			So(ds.Durations, ShouldResemble, []float64{1, 3})
		})

		Convey("When time or status cells are infinite or missing markers", func() {
			ds, rep, err := dataload.New("time", "status").ReadCSV(strings.NewReader(
				"time,status,x\n1,1,0.5\nInf,1,0.2\n-inf,0,0.3\n4,NA,0.4\n6,0,0.1\n"))
			So(err, ShouldBeNil)
			So(rep.DroppedRows, ShouldEqual, 3)
			So(ds.Durations, ShouldResemble, []float64{1, 6})
			So(ds.Events, ShouldResemble, []int{1, 0})
		})

		Convey("When a numeric covariate holds infinities", func() {
			ds, rep, err := dataload.New("time", "status").ReadCSV(strings.NewReader(
				"time,status,x\n1,1,2\n2,0,+Inf\n3,1,4\n4,0,-Inf\n5,1,6\n"))
			So(err, ShouldBeNil)
			x, err := ds.Column("x")
			So(err, ShouldBeNil)
			So(x.Values, ShouldResemble, []float64{2, 4, 4, 4, 6})
			So(rep.Imputed["x"], ShouldEqual, 2)
		})

		Convey("When the table has only a header", func() {
			_, _, err := l.ReadCSV(strings.NewReader("time,status,age\n"))
			So(errors.Is(err, dataload.ErrEmptyTable), ShouldBeTrue)
		})
	})
}

func TestLoadFiles(t *testing.T) {
	Convey("Given cohort files on disk", t, func() {
		dir := t.TempDir()
		ctx := context.Background()
		l := dataload.New("time", "status")

		Convey("When loading a CSV file", func() {
			path := filepath.Join(dir, "cohort.csv")
			So(os.WriteFile(path, []byte(cohortCSV), 0o600), ShouldBeNil)
			ds, _, err := l.Load(ctx, path)
			So(err, ShouldBeNil)
			So(ds.Len(), ShouldEqual, 4)
		})

		Convey("When loading an XLSX workbook", func() {
			path := filepath.Join(dir, "cohort.xlsx")
			f := excelize.NewFile()
			So(f.SetSheetRow("Sheet1", "A1", &[]interface{}{"time", "status", "age"}), ShouldBeNil)
			So(f.SetSheetRow("Sheet1", "A2", &[]interface{}{4.5, 1, 61}), ShouldBeNil)
			So(f.SetSheetRow("Sheet1", "A3", &[]interface{}{9, 0, 47}), ShouldBeNil)
			So(f.SaveAs(path), ShouldBeNil)
			So(f.Close(), ShouldBeNil)

			ds, rep, err := l.Load(ctx, path)
			So(err, ShouldBeNil)
			So(rep.Rows, ShouldEqual, 2)
			So(ds.Durations, ShouldResemble, []float64{4.5, 9})
			age, _ := ds.Column("age")
			So(age.Values, ShouldResemble, []float64{61, 47})
		})

		Convey("When the extension is unknown", func() {
			_, _, err := l.Load(ctx, filepath.Join(dir, "cohort.parquet"))
			So(errors.Is(err, dataload.ErrUnsupportedFormat), ShouldBeTrue)
		})
	})
}
