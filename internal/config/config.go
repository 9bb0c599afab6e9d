// Package config defines run configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and GRAFTLOSS_* env vars.
// - Validation failures wrap ErrInvalidConfig and name the accepted range.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Duration policies for rows with non-positive survival time.
const (
	DurationPolicyDrop           = "drop"
	DurationPolicyEpsilon        = "epsilon"
	DurationPolicyCensoredMedian = "censored_median"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects text or json records.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// LogFile, when set, receives the run log as JSON lines instead of stdout.
	LogFile string `koanf:"log_file"`

	// Addr configures the results API listen address, e.g. ":9080". Empty disables it.
	Addr string `koanf:"addr"`

	// DataPath points at the cohort table (.csv or .xlsx).
	DataPath string `koanf:"data_path"`

	// OutputDir receives the report tables.
	OutputDir string `koanf:"output_dir"`

	// StorePath is the badger directory for split plans and unit results.
	// Empty keeps everything in memory.
	StorePath string `koanf:"store_path"`

	// TimeCol and StatusCol name the duration and event columns.
	TimeCol   string `koanf:"time_col" validate:"required"`
	StatusCol string `koanf:"status_col" validate:"required"`

	// StratifyBy names the binary column splits are stratified on. Defaults to StatusCol.
	StratifyBy string `koanf:"stratify_by"`

	// Covariates restricts the covariate set; empty means every other column.
	Covariates []string `koanf:"covariates"`

	// Repetitions is the number of MC-CV splits.
	Repetitions int `koanf:"repetitions" validate:"gte=1,lte=100000"`

	// TrainFraction is the proportion of each stratum used for training.
	TrainFraction float64 `koanf:"train_fraction" validate:"gt=0,lt=1"`

	// Horizon is the time point for time-dependent concordance, in TimeCol units.
	Horizon float64 `koanf:"horizon" validate:"gt=0"`

	// Seed pins split generation when set; zero is a valid pin. Left unset, a
	// fresh seed is drawn at startup and recorded in the plan.
	Seed *int64 `koanf:"seed"`

	// FitTimeoutMS bounds fit+predict per unit. Zero disables the timeout.
	FitTimeoutMS int `koanf:"fit_timeout_ms" validate:"gte=0"`

	// WorkerCount sets the number of evaluation workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=0"`

	// ModelThreads is the thread budget each model may use internally.
	ModelThreads int `koanf:"model_threads" validate:"gte=1"`

	// QueueSize bounds the unit dispatch queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// ConcordanceMaxPairwise caps the exact pairwise tier; larger inputs are subsampled.
	ConcordanceMaxPairwise int `koanf:"concordance_max_pairwise" validate:"gte=10"`

	// ConcordanceSubsampleSeed fixes the subsample draw.
	ConcordanceSubsampleSeed int64 `koanf:"concordance_subsample_seed"`

	// DurationPolicy handles non-positive durations: drop, epsilon, censored_median.
	DurationPolicy string `koanf:"duration_policy" validate:"oneof=drop epsilon censored_median"`

	// Models lists the registered model names to evaluate.
	Models []string `koanf:"models" validate:"min=1,dive,required"`

	// RidgePenalty is the L2 weight for the signed-time ridge model.
	RidgePenalty float64 `koanf:"ridge_penalty" validate:"gte=0"`

	// ImportanceMedian combines per-split importance with the median instead of the mean.
	ImportanceMedian bool `koanf:"importance_median"`

	// Workbook toggles the XLSX copy of the report tables.
	Workbook bool `koanf:"workbook"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		OutputDir:                "output",
		TimeCol:                  "time",
		StatusCol:                "status",
		Repetitions:              20,
		TrainFraction:            0.75,
		Horizon:                  1,
		FitTimeoutMS:             0,
		WorkerCount:              runtime.NumCPU(),
		ModelThreads:             1,
		QueueSize:                1024,
		ConcordanceMaxPairwise:   2000,
		ConcordanceSubsampleSeed: 42,
		DurationPolicy:           DurationPolicyDrop,
		Models:                   []string{"coxph", "ridge", "null"},
		RidgePenalty:             1.0,
		Workbook:                 true,
	}
}

var validate = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

// newValidator reports fields by their koanf key so messages match what users write.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every field and returns the first problem found wrapped in
// ErrInvalidConfig, naming the field, the rejected value and the accepted range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s=%v (%s)", ErrInvalidConfig, fe.Field(), fe.Value(), acceptedRange(fe))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// FitTimeout returns the per-unit timeout; zero means none.
func (c *Config) FitTimeout() time.Duration {
	return time.Duration(c.FitTimeoutMS) * time.Millisecond
}

// StratifyColumn returns the stratification column, defaulting to the status column.
func (c *Config) StratifyColumn() string {
	if c.StratifyBy == "" {
		return c.StatusCol
	}
	return c.StratifyBy
}

// SplitSeed returns the pinned split seed and whether one is set.
func (c *Config) SplitSeed() (int64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// CapWorkers applies the workers x threads <= cores budget. A non-positive
// workers value means as many as the budget allows. At least one worker is kept.
func CapWorkers(workers, threads, cores int) (int, bool) {
	if cores < 1 {
		cores = 1
	}
	if threads < 1 {
		threads = 1
	}
	limit := cores / threads
	if limit < 1 {
		limit = 1
	}
	if workers < 1 {
		workers = limit
	}
	if workers > limit {
		return limit, true
	}
	return workers, false
}

func acceptedRange(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be > " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "min":
		return "needs at least " + fe.Param() + " entries"
	case "required":
		return "must not be empty"
	default:
		return "failed " + fe.Tag()
	}
}
