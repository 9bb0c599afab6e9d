package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/graftloss/internal/adapters/report"
	"github.com/okian/graftloss/internal/adapters/survival"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/internal/domain/types"
	"github.com/okian/graftloss/internal/synthcohort"
	"github.com/okian/graftloss/pkg/logger"
)

// writeCohort writes a small synthetic cohort CSV and returns its path.
func writeCohort(t *testing.T, dir string) string {
	t.Helper()
	cfg := synthcohort.DefaultConfig()
	cfg.N = 120
	ds, err := synthcohort.Generate(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("generate cohort: %v", err)
	}
	path := filepath.Join(dir, "cohort.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create cohort: %v", err)
	}
	defer f.Close()
	if err := synthcohort.WriteCSV(f, ds, "time", "status"); err != nil {
		t.Fatalf("write cohort: %v", err)
	}
	return path
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestConfigLoading(t *testing.T) {
	convey.Convey("Given GRAFTLOSS_ environment variables", t, func() {
		t.Setenv("GRAFTLOSS_ADDR", ":9080")
		t.Setenv("GRAFTLOSS_REPETITIONS", "7")
		t.Setenv("GRAFTLOSS_WORKER_COUNT", "3")
		t.Setenv("GRAFTLOSS_MODELS", "coxph, null")

		convey.Convey("When loading the config without a file", func() {
			cfg, err := loadConfig(context.Background(), &globalFlags{})

			convey.Convey("Then the environment overrides the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Repetitions, convey.ShouldEqual, 7)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Models, convey.ShouldResemble, []string{"coxph", "null"})
			})
		})

		convey.Convey("When a dotenv file sets a variable the process does not", func() {
			dir := t.TempDir()
			envPath := filepath.Join(dir, "graftloss.env")
			convey.So(os.WriteFile(envPath, []byte("GRAFTLOSS_HORIZON=2.5\nGRAFTLOSS_REPETITIONS=99\n"), 0o600), convey.ShouldBeNil)
			t.Cleanup(func() { _ = os.Unsetenv("GRAFTLOSS_HORIZON") })

			convey.So(loadEnv(envPath), convey.ShouldBeNil)
			cfg, err := loadConfig(context.Background(), &globalFlags{})

			convey.Convey("Then the file fills it in and the process value wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Horizon, convey.ShouldEqual, 2.5)
				convey.So(cfg.Repetitions, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When the named dotenv file is missing", func() {
			err := loadEnv(filepath.Join(t.TempDir(), "absent.env"))

			convey.Convey("Then loading fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestModelsCommand(t *testing.T) {
	convey.Convey("Given the models command", t, func() {
		out, err := execute(context.Background(), "models")

		convey.Convey("Then every registered model is listed", func() {
			convey.So(err, convey.ShouldBeNil)
			for _, name := range survival.Names() {
				convey.So(out, convey.ShouldContainSubstring, name)
			}
		})
	})
}

func TestRunCommand(t *testing.T) {
	convey.Convey("Given a synthetic cohort on disk", t, func() {
		dir := t.TempDir()
		data := writeCohort(t, dir)
		outDir := filepath.Join(dir, "out")
		t.Setenv("GRAFTLOSS_LOG_FILE", filepath.Join(dir, "run.log"))

		convey.Convey("When run has no data path", func() {
			_, err := execute(context.Background(), "run")

			convey.Convey("Then it is rejected as invalid config", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown model is requested", func() {
			_, err := execute(context.Background(), "run", "--data", data, "--models", "xgboost")

			convey.Convey("Then the run fails before fitting", func() {
				convey.So(errors.Is(err, survival.ErrUnknownModel), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When evaluating two models over three splits", func() {
			out, err := execute(context.Background(), "run",
				"--data", data,
				"--output", outDir,
				"--models", "ridge,null",
				"--repetitions", "3",
				"--seed", "11",
			)

			convey.Convey("Then the summary is printed and the report written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "seed 11, 3 splits")
				convey.So(out, convey.ShouldContainSubstring, "ridge")
				convey.So(out, convey.ShouldContainSubstring, "best:")
				_, statErr := os.Stat(filepath.Join(outDir, report.PerformanceFile))
				convey.So(statErr, convey.ShouldBeNil)
				_, statErr = os.Stat(filepath.Join(outDir, report.SummaryFile))
				convey.So(statErr, convey.ShouldBeNil)
			})

			convey.Convey("And the log file received JSON records", func() {
				raw, readErr := os.ReadFile(filepath.Join(dir, "run.log"))
				convey.So(readErr, convey.ShouldBeNil)
				convey.So(string(raw), convey.ShouldContainSubstring, `"msg":"run started"`)
			})
		})
	})
}

func TestSplitsCommand(t *testing.T) {
	convey.Convey("Given a cohort and a badger store directory", t, func() {
		dir := t.TempDir()
		data := writeCohort(t, dir)
		store := filepath.Join(dir, "store")
		t.Setenv("GRAFTLOSS_LOG_FILE", filepath.Join(dir, "splits.log"))

		convey.Convey("When splits runs without a store", func() {
			_, err := execute(context.Background(), "splits", "--data", data)

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When splits runs twice with the same seed", func() {
			args := []string{"splits", "--data", data, "--store", store, "--repetitions", "4", "--seed", "5"}
			first, err1 := execute(context.Background(), args...)
			second, err2 := execute(context.Background(), args...)

			convey.Convey("Then the second call reuses the stored plan", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(first, convey.ShouldStartWith, "generated plan: 4 splits over 120 rows")
				convey.So(second, convey.ShouldStartWith, "reused plan: 4 splits")
			})
		})
	})
}

func TestPrintSummary(t *testing.T) {
	convey.Convey("Given a partial summary with an undefined estimate", t, func() {
		mean := 0.71
		sum := types.RunSummary{
			RunID:   "r1",
			Seed:    3,
			Splits:  2,
			Partial: true,
			Performance: []types.PerformanceRow{
				{Model: "coxph", TDMean: &mean, TIMean: &mean, NValidSplits: 2},
			},
			Importance: []types.ImportanceRow{{Rank: 1, Feature: "age", Importance: 1}},
		}
		var buf bytes.Buffer
		printSummary(&buf, sum, []string{"out/performance.csv"})
		out := buf.String()

		convey.Convey("Then missing values print as NA", func() {
			convey.So(out, convey.ShouldContainSubstring, "partial")
			convey.So(out, convey.ShouldContainSubstring, "0.7100")
			convey.So(out, convey.ShouldContainSubstring, "NA")
			convey.So(out, convey.ShouldContainSubstring, "top features: age")
			convey.So(strings.Count(out, "wrote "), convey.ShouldEqual, 1)
		})
	})
}
