package live

import (
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/sink"
	"github.com/evdnx/trendsweep/strategy"
	"github.com/evdnx/trendsweep/types"
)

var ErrNoParams = errors.New("no strategy parameters to trade")

// Options is what the bot trades and how.
type Options struct {
	Symbol    string
	Timeframe string
	Params    types.ParameterSet

	Bars          int // history fetched per tick
	Lot           float64
	DefaultStop   int // points
	Trailing      strategy.Trailing
	TrailingOn    bool
	Retries       int
	RetryInterval time.Duration
	PollEvery     time.Duration
	StopFlag      string // file whose presence stops the bot
}

// Resolve builds Options from the configuration. In manual mode the symbol,
// timeframe and parameters come from the live section, otherwise from the
// summary written by the last sweep.
func Resolve(cfg *config.Config) (Options, error) {
	l := cfg.Live
	opts := Options{
		Bars:        l.Bars,
		Lot:         cfg.Account.LotSize,
		DefaultStop: l.DefaultStop,
		Trailing: strategy.Trailing{
			Trigger:  cfg.Trading.TrailingTriggerPoints,
			Distance: cfg.Trading.TrailingDistancePoints,
		},
		TrailingOn:    l.TrailingOn,
		Retries:       l.OrderRetries,
		RetryInterval: l.RetryInterval,
		PollEvery:     l.PollEvery,
		StopFlag:      l.StopFlag,
	}
	if l.UseManual {
		opts.Symbol, opts.Timeframe, opts.Params = l.Symbol, l.Timeframe, l.Params
	} else {
		sum, err := sink.LoadSummary(cfg.Output.BestParamsPath)
		if err != nil {
			return Options{}, fmt.Errorf("load best parameters: %w", err)
		}
		if sum.Symbol == "" || sum.Timeframe == "" || !sum.BestProfit.Valid() {
			return Options{}, fmt.Errorf("%w: %s has no winning cell", ErrNoParams, cfg.Output.BestParamsPath)
		}
		opts.Symbol, opts.Timeframe, opts.Params = sum.Symbol, sum.Timeframe, sum.BestParams
	}
	if err := opts.Params.Validate(); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrNoParams, err)
	}
	return opts, nil
}

// GuardFrom builds the daily loss guard for acct. It is inert unless the
// account runs in funded mode.
func GuardFrom(cfg *config.Config, acct risk.Account) (*risk.DailyGuard, error) {
	loc, err := time.LoadLocation(cfg.Live.Timezone)
	if err != nil {
		return nil, fmt.Errorf("live.timezone: %w", err)
	}
	a := cfg.Account
	return risk.NewDailyGuard(acct, a.StartBalance, a.DailyMaxLossPercent, loc, a.FundedMode), nil
}
