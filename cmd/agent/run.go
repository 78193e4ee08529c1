package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aitradebot/internal/engine"
	"aitradebot/internal/ledger"
	"aitradebot/internal/logger"
	"aitradebot/internal/market"
	"aitradebot/internal/monitor"
	"aitradebot/internal/trace"
	"aitradebot/internal/tracker"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision loop until interrupted",
	Long: `Run streams snapshots for every configured symbol and runs one decision
cycle per symbol whenever new data arrives. The monitoring API listens on
monitor.addr. With feed.source SYNTHETIC the agent replays generated data and
exits once the replay is exhausted.

Example:
  agent run --config config.yaml`,
	RunE: runAgent,
}

var (
	syntheticPoints   int
	syntheticInterval time.Duration
	noMonitor         bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&syntheticPoints, "synthetic-points", 300, "snapshots per symbol for the SYNTHETIC feed")
	runCmd.Flags().DurationVar(&syntheticInterval, "synthetic-interval", 10*time.Millisecond, "delay between SYNTHETIC snapshots")
	runCmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "do not start the monitoring API")
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - intents are logged, no paper orders")
	}

	stopProfiler := startProfiler(ctx, cfg)
	defer stopProfiler()

	compressOldLogs(ctx, cfg, cfg.Journal.RetentionDays)

	sink, err := initializeSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn(ctx, "Failed to close journal", "error", err)
		}
	}()

	scorer, err := initializeScorer(ctx, cfg)
	if err != nil {
		return err
	}

	buf := market.NewBuffer(cfg.Market.Retention)
	led := ledger.New(cfg, sink)
	metrics := monitor.NewMetrics()
	recorder := monitor.NewRecorder(cfg.Monitor.History, metrics)

	eng := initializeEngine(cfg, engine.Deps{
		Buffer:   buf,
		Scorer:   scorer,
		Ledger:   led,
		Observer: recorder,
	})

	if !noMonitor {
		srv := monitor.NewServer(cfg, recorder, tracker.New(led, buf), led, metrics)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info(ctx, "Agent started",
		"mode", cfg.Mode,
		"symbols", cfg.Symbols,
		"provider", cfg.LLM.Provider,
		"capital", cfg.Capital.Starting,
		"floor", cfg.Capital.Floor,
	)

	runner := engine.NewRunner(eng, buf, cfg.Symbols, recorder)
	err = runner.Run(ctx, initializeFeed(ctx, cfg, syntheticPoints, syntheticInterval))
	if errors.Is(err, context.Canceled) {
		logger.Info(ctx, "Shutting down...")
		err = nil
	}

	summary := tracker.New(led, buf).Snapshot()
	logger.Info(context.Background(), "Final capital",
		"available", summary.Capital.Available.String(),
		"total", summary.Capital.Total.String(),
		"equity", summary.Equity.String(),
		"realized", summary.Realized.String(),
		"unrealized", summary.Unrealized.String(),
	)

	if p, eodErr := initializeEOD(cfg).SummarizeToday(); eodErr == nil && p != "" {
		logger.Info(context.Background(), "EOD CSV written", "path", p)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = trace.Shutdown(shutdownCtx)
	return err
}
