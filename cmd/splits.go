package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/graftloss/internal/adapters/survival"
	service "github.com/okian/graftloss/internal/app"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/pkg/logger"
)

func newSplitsCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "splits",
		Short: "Generate the split plan and persist it to the store without fitting models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, err := loadConfig(ctx, g)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, f); err != nil {
				return err
			}
			if cfg.StorePath == "" {
				return fmt.Errorf("%w: store_path=\"\" (splits needs a store to persist the plan)", config.ErrInvalidConfig)
			}
			closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			log := logger.Get().Named("graftloss")
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ds, err := loadDataset(ctx, cfg, log)
			if err != nil {
				return err
			}
			svc := service.New(append(service.FromConfig(cfg),
				service.WithLogger(log.Named("service")),
				service.WithStore(store),
			)...)
			plan, reused, err := svc.Plan(ctx, ds)
			if err != nil {
				return err
			}

			state := "generated"
			if reused {
				state = "reused"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s plan: %d splits over %d rows (train_fraction %v, seed %d) in %s\n",
				state, len(plan.Splits), plan.Rows, plan.TrainFraction, plan.Seed, cfg.StorePath)
			return nil
		},
	}
	bindRunFlags(cmd, f)
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered model names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(survival.Names(), "\n"))
			return err
		},
	}
}
