package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"aitradebot/internal/advisory"
	"aitradebot/internal/engine"
	"aitradebot/internal/engine/engineobs"
	"aitradebot/internal/eod"
	"aitradebot/internal/eod/eodobs"
	"aitradebot/internal/feed"
	"aitradebot/internal/feed/binance"
	"aitradebot/internal/interfaces"
	"aitradebot/internal/journal"
	"aitradebot/internal/logger"
	"aitradebot/internal/news"
	"aitradebot/internal/store"
	"aitradebot/internal/trace"
	"aitradebot/internal/types"

	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
)

// initializeSystem loads .env, then sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig falls back to defaults only when the file does not exist.
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn(ctx, "Config file not found, using defaults", "path", configPath)
		return store.Default(), nil
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}
	return cfg, nil
}

// startProfiler is a no-op unless profiling.enabled is set.
func startProfiler(ctx context.Context, cfg *store.Config) (stop func()) {
	if !cfg.Profiling.Enabled {
		return func() {}
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "aitradebot.agent",
		ServerAddress:   cfg.Profiling.Server,
		Tags:            map[string]string{"mode": cfg.Mode},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		logger.Warn(ctx, "Profiler not started", "error", err, "server", cfg.Profiling.Server)
		return func() {}
	}
	logger.Info(ctx, "Continuous profiling enabled", "server", cfg.Profiling.Server)
	return func() { _ = p.Stop() }
}

// initializeSinks opens every configured journal sink. The daily JSONL file is
// always written; SQLite and Postgres are optional.
func initializeSinks(ctx context.Context, cfg *store.Config) (journal.Sink, error) {
	file, err := journal.NewFileSink(cfg.Journal.Dir)
	if err != nil {
		return nil, fmt.Errorf("open journal dir: %w", err)
	}
	sinks := journal.MultiSink{file}

	if cfg.Journal.SQLitePath != "" {
		s, err := journal.NewSQLiteSink(cfg.Journal.SQLitePath)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		sinks = append(sinks, s)
		logger.Info(ctx, "SQLite journal enabled", "path", cfg.Journal.SQLitePath)
	}
	if cfg.Journal.PostgresDSN != "" {
		s, err := journal.NewPostgresSink(cfg.Journal.PostgresDSN)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		sinks = append(sinks, s)
		logger.Info(ctx, "Postgres journal enabled")
	}
	return sinks, nil
}

// initializeScorer builds the advisory provider and, when enabled, the headline source.
func initializeScorer(ctx context.Context, cfg *store.Config) (*advisory.Scorer, error) {
	provider, err := advisory.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.Provider == "NOOP" {
		logger.Warn(ctx, "No LLM provider configured - advisory always abstains")
	}

	var opts []advisory.Option
	if cfg.News.Enabled {
		opts = append(opts, advisory.WithHeadlines(news.NewService(cfg)))
		logger.Info(ctx, "Headline context enabled", "url", cfg.News.URL)
	}
	return advisory.NewScorer(cfg, provider, opts...), nil
}

func initializeEngine(cfg *store.Config, d engine.Deps) interfaces.Engine {
	return engineobs.Wrap(engine.New(cfg, d))
}

func initializeEOD(cfg *store.Config) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(cfg))
}

// initializeFeed picks the live Binance stream or an offline synthetic replay.
func initializeFeed(ctx context.Context, cfg *store.Config, points int, interval time.Duration) interfaces.Feed {
	if cfg.Feed.Source == "BINANCE" {
		logger.Info(ctx, "Using Binance ticker feed", "url", cfg.Feed.URL, "symbols", cfg.Symbols)
		return binance.New(cfg)
	}

	logger.Warn(ctx, "Using SYNTHETIC market data", "points", points, "interval", interval.String())
	start := time.Now().UTC().Add(-time.Duration(points) * time.Second)
	var snaps []types.Snapshot
	series := make([][]types.Snapshot, len(cfg.Symbols))
	for i, sym := range cfg.Symbols {
		series[i] = feed.Synthetic(sym, 100, points, start, time.Second)
	}
	for j := range points {
		for i := range series {
			snaps = append(snaps, series[i][j])
		}
	}
	return feed.NewReplay(snaps, interval)
}

func compressOldLogs(ctx context.Context, cfg *store.Config, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	op := logger.StartOperation(ctx, "journal.compress", "dir", cfg.Journal.Dir, "retention_days", retentionDays)
	if err := journal.CompressOlder(cfg.Journal.Dir, retentionDays, time.Now()); err != nil {
		op.EndWithError(err)
		return
	}
	op.End()
}
