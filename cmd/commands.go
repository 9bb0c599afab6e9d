package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/graftloss/internal/adapters/dataload"
	"github.com/okian/graftloss/internal/adapters/repository"
	"github.com/okian/graftloss/internal/adapters/survival"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/pkg/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

// runFlags override config values for a single invocation.
type runFlags struct {
	data        string
	output      string
	store       string
	addr        string
	models      []string
	repetitions int
	seed        int64
	linger      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "graftloss",
		Short:         "Monte Carlo cross-validation of survival models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnv(g.envFile)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file loaded before the config (default ./.env when present)")

	root.AddCommand(newRunCmd(g), newSplitsCmd(g), newModelsCmd())
	return root
}

// loadEnv reads an explicit dotenv file, or ./.env when it exists.
// Variables already set in the process win over the file.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, g *globalFlags) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	return config.LoadFile(ctx, path)
}

// applyRunFlags copies explicitly set flags onto cfg and revalidates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f *runFlags) error {
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataPath = f.data
	}
	if flags.Changed("output") {
		cfg.OutputDir = f.output
	}
	if flags.Changed("store") {
		cfg.StorePath = f.store
	}
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("models") {
		cfg.Models = f.models
	}
	if flags.Changed("repetitions") {
		cfg.Repetitions = f.repetitions
	}
	if flags.Changed("seed") {
		cfg.Seed = &f.seed
	}
	if cfg.DataPath == "" {
		return fmt.Errorf("%w: data_path=\"\" (must not be empty)", config.ErrInvalidConfig)
	}
	return cfg.Validate()
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.data, "data", "", "cohort table (.csv or .xlsx)")
	flags.StringVar(&f.output, "output", "", "report directory")
	flags.StringVar(&f.store, "store", "", "badger directory for plans and unit results")
	flags.StringVar(&f.addr, "addr", "", "results API listen address, e.g. :9080")
	flags.StringSliceVar(&f.models, "models", nil, "models to evaluate ("+strings.Join(survival.Names(), ", ")+")")
	flags.IntVar(&f.repetitions, "repetitions", 0, "number of MC-CV splits")
	flags.Int64Var(&f.seed, "seed", 0, "split seed, 0 included; unset draws a fresh one")
}

// setupLogging initialises the global logger from cfg. The returned closer
// releases the log file, if any.
func setupLogging(cfg *config.Config) (func(), error) {
	var (
		w      io.Writer = os.Stdout
		asJSON           = cfg.LogFormat == "json"
		closer           = func() {}
	)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, asJSON = f, true
		closer = func() { _ = f.Close() }
	}
	if err := logger.InitWithWriter(w, asJSON); err != nil {
		closer()
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return closer, nil
}

// openStore returns a badger store when a path is configured, otherwise memory.
func openStore(cfg *config.Config, log logger.Logger) (repository.Store, error) {
	if cfg.StorePath == "" {
		return repository.NewMemStore(), nil
	}
	st, err := repository.OpenBadgerStore(cfg.StorePath, repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// loadDataset reads the cohort table and applies the duration policy.
func loadDataset(ctx context.Context, cfg *config.Config, log logger.Logger) (*dataset.Dataset, error) {
	loader := dataload.New(cfg.TimeCol, cfg.StatusCol,
		dataload.WithCovariates(cfg.Covariates...),
		dataload.WithLogger(log.Named("dataload")),
	)
	raw, rep, err := loader.Load(ctx, cfg.DataPath)
	if err != nil {
		return nil, err
	}
	ds, prep, err := dataset.PrepareDurations(raw, dataset.Policy(cfg.DurationPolicy))
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "dataset ready",
		logger.String("path", cfg.DataPath),
		logger.Int("rows", ds.Len()),
		logger.Int("events", ds.EventCount()),
		logger.Float64("event_rate", ds.EventRate()),
		logger.Int("covariates", len(ds.Names())),
		logger.Int("dropped_on_load", rep.DroppedRows),
		logger.Int("dropped_duration", prep.Dropped),
		logger.Int("replaced_duration", prep.Replaced),
		logger.String("duration_policy", cfg.DurationPolicy))
	return ds, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
