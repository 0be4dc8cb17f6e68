// Command live trades the best parameters of the last sweep. Orders go to
// the in-memory paper broker, fed with bars from the configured source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/trendsweep/broker"
	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/feed"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/live"
	"github.com/evdnx/trendsweep/logger"
	"github.com/evdnx/trendsweep/types"
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
		log.Error("live_failed", logger.Err(err))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	opts, err := live.Resolve(cfg)
	if err != nil {
		return err
	}
	mode := "auto"
	if cfg.Live.UseManual {
		mode = "manual"
	}
	log.Info("live_config", logger.String("mode", mode), logger.String("symbol", opts.Symbol), logger.String("timeframe", opts.Timeframe))

	inst, ok := cfg.Instrument(opts.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", feed.ErrUnknownInstrument, opts.Symbol)
	}
	paper := broker.NewPaper(cfg.Account.StartBalance).WithCommission(cfg.Trading.CommissionPerLot)
	if err := paper.AddInstrument(inst); err != nil {
		return err
	}
	src := feed.NewCSVSource(cfg.Backtest.DataDir, feed.Instruments(cfg.Instruments))
	refresh := func() error {
		bars, err := src.Bars(ctx, opts.Symbol, opts.Timeframe, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		paper.SetBars(opts.Symbol, opts.Timeframe, bars)
		last := bars[len(bars)-1].Close
		paper.SetTick(opts.Symbol, types.Tick{Bid: last, Ask: last + cfg.Trading.SpreadPoints*inst.Point})
		return nil
	}
	if err := refresh(); err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	go func() {
		t := time.NewTicker(opts.PollEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := refresh(); err != nil {
					log.Warn("bars_refresh_failed", logger.Err(err))
				}
			}
		}
	}()

	guard, err := live.GuardFrom(cfg, paper)
	if err != nil {
		return err
	}
	var provider indicator.Provider = indicator.Standard{}
	if cfg.Backtest.Indicator == config.IndicatorMoneyFlow {
		provider = indicator.MoneyFlow{}
	}

	err = live.NewBot(paper, provider, guard, opts, log).Run(ctx)
	if errors.Is(err, live.ErrDailyLoss) {
		log.Warn("trading_halted", logger.Err(err))
		return nil
	}
	return err
}
