// Command sweep searches the strategy parameter grid over historical bars
// and writes the best parameters for the live loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/evdnx/trendsweep/backtest"
	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/feed"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/logger"
	"github.com/evdnx/trendsweep/sink"
	"github.com/evdnx/trendsweep/sweep"
)

func main() {
	cfgPath := flag.String("config", envOr("TRENDSWEEP_CONFIG", "config.yaml"), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("sweep_failed", logger.Err(err))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) (err error) {
	if addr := cfg.Output.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics_server_failed", logger.Err(err))
			}
		}()
		defer srv.Close()
	}

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeSrc()) }()

	out, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()

	simCfg, err := backtest.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	from, to, err := cfg.Backtest.Range()
	if err != nil {
		return err
	}

	runID := sink.NewRunID()
	log = log.With(logger.String("run_id", runID))
	runner := sweep.NewRunner(cfg, providerFor(cfg), backtest.NewSimulator(simCfg), log)
	log.Info("sweep_started",
		logger.Any("symbols", cfg.Backtest.Symbols),
		logger.Any("timeframes", cfg.Backtest.Timeframes),
		logger.Int("grid_size", runner.Grid().Size()),
		logger.Int("workers", cfg.Backtest.Workers),
		logger.Bool("funded_mode", cfg.Account.FundedMode),
	)

	rep, runErr := runner.Run(ctx, src, sweep.Pairs(cfg.Backtest.Symbols, cfg.Backtest.Timeframes), from, to)
	if runErr != nil {
		// keep what finished; an interrupted sweep still leaves a record
		log.Warn("sweep_interrupted", logger.Err(runErr))
	}

	saveCtx := context.WithoutCancel(ctx)
	sum := sink.FromReport(runID, rep, time.Now())
	if err := out.Save(saveCtx, sum); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if rep.HasBest {
		if err := out.SaveTrades(saveCtx, runID, rep.Best.Best.Journal); err != nil {
			return fmt.Errorf("save trades: %w", err)
		}
	}
	log.Info("best_found",
		logger.String("symbol", sum.Symbol),
		logger.String("timeframe", sum.Timeframe),
		logger.String("params", sum.BestParams.String()),
		logger.Float64("profit", float64(sum.BestProfit)),
		logger.Bool("found", rep.HasBest),
	)
	return runErr
}

func openSource(ctx context.Context, cfg *config.Config) (feed.Source, func() error, error) {
	instruments := feed.Instruments(cfg.Instruments)
	switch cfg.Backtest.Source {
	case config.SourceClickHouse:
		src, err := feed.NewClickHouseSource(ctx, cfg.ClickHouse, instruments)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return feed.NewCSVSource(cfg.Backtest.DataDir, instruments), func() error { return nil }, nil
	}
}

func openSinks(cfg *config.Config) (sink.Multi, error) {
	out := sink.Multi{sink.NewJSONFile(cfg.Output.BestParamsPath)}
	if cfg.Output.SQLitePath != "" {
		db, err := sink.NewSQLite(cfg.Output.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite sink: %w", err)
		}
		out = append(out, db)
	}
	return out, nil
}

func providerFor(cfg *config.Config) indicator.Provider {
	if cfg.Backtest.Indicator == config.IndicatorMoneyFlow {
		return indicator.MoneyFlow{}
	}
	return indicator.Standard{}
}
