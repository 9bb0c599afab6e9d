package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/okian/graftloss/internal/synthcohort"
	"github.com/okian/graftloss/pkg/logger"
)

const defaultTimeout = 5 * time.Minute

func main() {
	def := synthcohort.DefaultConfig()
	var (
		n         = flag.Int("n", def.N, "Number of subjects")
		eventRate = flag.Float64("event-rate", def.EventRate, "Share of subjects with an observed event")
		hazard    = flag.Float64("hazard", def.BaselineHazard, "Baseline exponential hazard")
		seed      = flag.Int64("seed", def.Seed, "Random seed")
		output    = flag.String("output", "", "Output CSV (default: stdout)")
		timeCol   = flag.String("time-col", "time", "Duration column name")
		statusCol = flag.String("status-col", "status", "Event indicator column name")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	// Records go to stderr so the CSV can be piped from stdout.
	if err := logger.InitWithWriter(os.Stderr, false); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get().Named("synth-cohort")

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cfg := def
	cfg.N = *n
	cfg.EventRate = *eventRate
	cfg.BaselineHazard = *hazard
	cfg.Seed = *seed

	if err := run(ctx, cfg, *output, *timeCol, *statusCol, log); err != nil {
		log.Error(ctx, "generation failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg synthcohort.Config, output, timeCol, statusCol string, log logger.Logger) error {
	ds, err := synthcohort.Generate(ctx, cfg, log)
	if err != nil {
		return err
	}

	w := os.Stdout
	if output != "" {
		f, err := os.Create(output) //nolint:gosec // operator-supplied path
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	if err := synthcohort.WriteCSV(w, ds, timeCol, statusCol); err != nil {
		return err
	}

	median, err := synthcohort.MedianDuration(ds)
	if err != nil {
		return err
	}
	log.Info(ctx, "cohort written",
		logger.Int("rows", ds.Len()),
		logger.Int("events", ds.EventCount()),
		logger.Float64("median_duration", median),
		logger.String("output", output))
	return nil
}
