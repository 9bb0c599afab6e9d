package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/graftloss/internal/adapters/http/api"
	"github.com/okian/graftloss/internal/adapters/report"
	"github.com/okian/graftloss/internal/adapters/survival"
	service "github.com/okian/graftloss/internal/app"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/internal/domain/types"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/okian/graftloss/pkg/metrics"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the configured models over MC-CV splits and write the report",
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
			closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			return runEvaluation(ctx, cfg, f.linger, cmd.OutOrStdout())
		},
	}
	bindRunFlags(cmd, f)
	cmd.Flags().BoolVar(&f.linger, "linger", false, "keep serving the results API after the run until interrupted")
	return cmd
}

func runEvaluation(ctx context.Context, cfg *config.Config, linger bool, out io.Writer) error {
	log := logger.Get().Named("graftloss")

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "close store", logger.Error(err))
		}
	}()

	ds, err := loadDataset(ctx, cfg, log)
	if err != nil {
		return err
	}

	seed, _ := cfg.SplitSeed()
	models, err := survival.Build(cfg.Models, survival.BuildOptions{
		RidgePenalty: cfg.RidgePenalty,
		Seed:         seed,
		Threads:      cfg.ModelThreads,
		Covariates:   cfg.Covariates,
	})
	if err != nil {
		return err
	}

	svc := service.New(append(service.FromConfig(cfg),
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
	)...)

	var srv *http.Server
	if cfg.Addr != "" {
		srv = startServer(ctx, cfg.Addr, svc, log)
		go startServiceMetricsUpdater(ctx, svc)
	}

	outcome, runErr := svc.Run(ctx, ds, models)
	if runErr != nil {
		shutdownServer(srv, log)
		return runErr
	}

	// The run may have been interrupted; the partial report is still written.
	wctx := context.WithoutCancel(ctx)
	w := report.NewWriter(cfg.OutputDir,
		report.WithWorkbook(cfg.Workbook),
		report.WithLogger(log.Named("report")),
	)
	files, err := w.Write(wctx, outcome.Summary, outcome.Results)
	if err != nil {
		shutdownServer(srv, log)
		return err
	}
	printSummary(out, outcome.Summary, files)

	if srv != nil && linger && ctx.Err() == nil {
		log.Info(ctx, "run finished; serving results until interrupted", logger.String("addr", cfg.Addr))
		<-ctx.Done()
	}
	shutdownServer(srv, log)
	return nil
}

// startServer serves the results API on addr in the background.
func startServer(ctx context.Context, addr string, svc *service.Service, log logger.Logger) *http.Server {
	metrics.EnableRuntimeCollectors()

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, log logger.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return
	}
	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater refreshes the queue gauges while the process runs.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	// GetStats refreshes the queue length gauge itself.
	stats := svc.GetStats()
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}

// printSummary writes the performance table and the report files to out.
func printSummary(out io.Writer, sum types.RunSummary, files []string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s (seed %d, %d splits", sum.RunID, sum.Seed, sum.Splits)
	if sum.Partial {
		fmt.Fprint(tw, ", partial")
	}
	fmt.Fprintln(tw, ")")
	fmt.Fprintln(tw, "MODEL\tC_TD\tSD\tC_HARRELL\tSD\tVALID\tFAILED")
	for _, r := range sum.Performance {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.Model, cell(r.TDMean), cell(r.TDSD), cell(r.TIMean), cell(r.TISD), r.NValidSplits, r.NFailed)
	}
	if sum.BestModel != "" {
		fmt.Fprintf(tw, "best: %s\n", sum.BestModel)
	}
	if len(sum.Importance) > 0 {
		top := sum.Importance
		if len(top) > 10 {
			top = top[:10]
		}
		names := make([]string, 0, len(top))
		for _, r := range top {
			names = append(names, r.Feature)
		}
		fmt.Fprintf(tw, "top features: %s\n", strings.Join(names, ", "))
	}
	for _, f := range files {
		fmt.Fprintf(tw, "wrote %s\n", f)
	}
	_ = tw.Flush()
}

func cell(p *float64) string {
	if p == nil {
		return "NA"
	}
	return fmt.Sprintf("%.4f", *p)
}
