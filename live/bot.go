// Package live trades the winning parameter set against a broker on a
// fixed polling schedule.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/evdnx/trendsweep/broker"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/logger"
	"github.com/evdnx/trendsweep/metrics"
	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/strategy"
	"github.com/evdnx/trendsweep/types"
)

var (
	ErrStopFlag  = errors.New("stop flag present")
	ErrDailyLoss = errors.New("daily loss limit reached")
	ErrNoBars    = errors.New("not enough bars to evaluate a signal")
)

// Bot polls the broker, evaluates the strategy on the latest closed bars
// and manages at most one position on its symbol.
type Bot struct {
	broker   broker.Broker
	provider indicator.Provider
	guard    *risk.DailyGuard
	opts     Options
	log      logger.Logger

	done     chan error
	doneOnce sync.Once
}

// NewBot wires a bot. guard may be nil when no daily loss check applies.
func NewBot(b broker.Broker, provider indicator.Provider, guard *risk.DailyGuard, opts Options, log logger.Logger) *Bot {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Bot{
		broker:   b,
		provider: provider,
		guard:    guard,
		opts:     opts,
		log:      log.With(logger.String("symbol", opts.Symbol), logger.String("timeframe", opts.Timeframe)),
		done:     make(chan error, 1),
	}
}

// Run checks the daily loss limit, evaluates once and then ticks every
// PollEvery until ctx ends, the stop flag appears or the loss limit is hit.
// Only the loss limit is reported as an error.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.checkGuard(ctx); err != nil {
		return err
	}
	b.log.Info("bot_started", logger.String("params", b.opts.Params.String()), logger.Duration("poll_every", b.opts.PollEvery))

	b.step(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", b.opts.PollEvery), func() { b.step(ctx) }); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()

	var err error
	select {
	case <-ctx.Done():
	case err = <-b.done:
	}
	<-c.Stop().Done()
	b.log.Info("bot_stopped", logger.Err(err))
	if errors.Is(err, ErrStopFlag) {
		return nil
	}
	return err
}

func (b *Bot) step(ctx context.Context) {
	err := b.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrStopFlag), errors.Is(err, ErrDailyLoss):
		b.doneOnce.Do(func() { b.done <- err })
	default:
		b.log.Warn("tick_failed", logger.Err(err))
	}
}

func (b *Bot) checkGuard(ctx context.Context) error {
	if b.guard == nil {
		return nil
	}
	stop, err := b.guard.ShouldStop(ctx)
	if err != nil {
		return fmt.Errorf("daily loss check: %w", err)
	}
	b.log.Debug("daily_loss_check", logger.Float64("pnl", b.guard.LastPnL()), logger.Float64("limit", -b.guard.Limit()))
	if stop {
		b.log.Error("daily_loss_hit", logger.Float64("pnl", b.guard.LastPnL()), logger.Float64("limit", -b.guard.Limit()))
		return ErrDailyLoss
	}
	return nil
}

func (b *Bot) stopFlagSet() bool {
	if b.opts.StopFlag == "" {
		return false
	}
	if _, err := os.Stat(b.opts.StopFlag); err != nil {
		return false
	}
	if err := os.Remove(b.opts.StopFlag); err != nil {
		b.log.Warn("stop_flag_remove_failed", logger.Err(err))
	}
	b.log.Info("stop_flag_detected", logger.String("path", b.opts.StopFlag))
	return true
}

// Tick runs one evaluation: stop flag, loss guard, signal, entry and
// trailing adjustment.
func (b *Bot) Tick(ctx context.Context) error {
	if b.stopFlagSet() {
		return ErrStopFlag
	}
	if err := b.checkGuard(ctx); err != nil {
		return err
	}
	if bal, err := b.broker.Balance(ctx); err == nil {
		metrics.EquityGauge.Set(bal)
	}

	bars, err := b.broker.RecentBars(ctx, b.opts.Symbol, b.opts.Timeframe, b.opts.Bars)
	if err != nil {
		return fmt.Errorf("recent bars: %w", err)
	}
	if len(bars) < 2 {
		return fmt.Errorf("%w: got %d", ErrNoBars, len(bars))
	}
	frame, err := b.provider.Compute(bars, b.opts.Params)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if frame.Len() < 2 {
		return fmt.Errorf("%w: frame has %d rows", ErrNoBars, frame.Len())
	}
	last := frame.Len() - 1
	price := frame.Bars[last].Close
	b.log.Debug("tick",
		logger.String("signal", string(strategy.Stable(frame.Signal[last-1], frame.Signal[last]))),
		logger.Float64("adx", frame.Strength[last]),
		logger.Float64("rsi", frame.Momentum[last]),
		logger.Float64("price", price),
	)

	if side, ok := strategy.Entry(frame.Signal[last-1], frame.Signal[last], frame.Strength[last], frame.Momentum[last], b.opts.Params); ok && !math.IsNaN(price) {
		if _, err := b.Execute(ctx, side); err != nil {
			b.log.Error("order_failed", logger.String("side", string(side)), logger.Err(err))
		}
	}
	if b.opts.TrailingOn {
		return b.AdjustTrailing(ctx)
	}
	return nil
}

// Execute moves the account to side: an open position on the same side is
// left alone, an opposite one is closed and a new market order with the
// default stop is sent. It reports whether an order was placed.
func (b *Bot) Execute(ctx context.Context, side types.Side) (bool, error) {
	positions, err := b.broker.Positions(ctx, b.opts.Symbol)
	if err != nil {
		return false, fmt.Errorf("positions: %w", err)
	}
	for _, p := range positions {
		if p.Side == side {
			b.log.Info("order_skipped", logger.String("side", string(side)), logger.Int64("ticket", p.Ticket))
			return false, nil
		}
		if err := b.broker.Close(ctx, p.Ticket); err != nil {
			return false, fmt.Errorf("close opposite %d: %w", p.Ticket, err)
		}
		b.log.Info("position_closed", logger.String("side", string(p.Side)), logger.Int64("ticket", p.Ticket))
	}

	inst, err := b.broker.SymbolInfo(ctx, b.opts.Symbol)
	if err != nil {
		return false, fmt.Errorf("symbol info: %w", err)
	}
	if !inst.AllowsVolume(b.opts.Lot) {
		return false, fmt.Errorf("%w: lot %v not in [%v, %v]", broker.ErrInvalidVolume, b.opts.Lot, inst.VolumeMin, inst.VolumeMax)
	}
	tick, err := b.broker.Tick(ctx, b.opts.Symbol)
	if err != nil {
		return false, fmt.Errorf("tick: %w", err)
	}
	price := tick.Ask
	if side == types.Sell {
		price = tick.Bid
	}
	order := types.Order{
		Symbol:  b.opts.Symbol,
		Side:    side,
		Qty:     b.opts.Lot,
		Price:   price,
		Stop:    roundPrice(strategy.InitialStop(side, price, b.opts.DefaultStop, inst.Point), inst.Digits),
		Comment: "trendsweep",
	}

	var lastErr error
	for attempt := 1; attempt <= b.opts.Retries; attempt++ {
		ticket, err := b.broker.Submit(ctx, order)
		if err == nil {
			metrics.OrdersSubmitted.WithLabelValues(string(side)).Inc()
			b.log.Info("order_submitted",
				logger.Int64("ticket", ticket),
				logger.String("side", string(side)),
				logger.Float64("price", price),
				logger.Float64("lot", order.Qty),
				logger.Float64("stop", order.Stop),
			)
			return true, nil
		}
		lastErr = err
		b.log.Warn("order_attempt_failed", logger.Int("attempt", attempt), logger.Err(err))
		if attempt < b.opts.Retries {
			if err := sleep(ctx, b.opts.RetryInterval); err != nil {
				return false, err
			}
		}
	}
	return false, fmt.Errorf("submit %s after %d attempts: %w", side, b.opts.Retries, lastErr)
}

// AdjustTrailing moves the stop of every open position on the symbol
// toward price once its open profit reaches the trigger. Stops only
// tighten. Profit is measured at the price the position would exit at.
func (b *Bot) AdjustTrailing(ctx context.Context) error {
	positions, err := b.broker.Positions(ctx, b.opts.Symbol)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}
	inst, err := b.broker.SymbolInfo(ctx, b.opts.Symbol)
	if err != nil {
		return fmt.Errorf("symbol info: %w", err)
	}
	tick, err := b.broker.Tick(ctx, b.opts.Symbol)
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	gap := float64(b.opts.Trailing.Distance) * inst.Point
	for _, p := range positions {
		price, candidate := tick.Bid, tick.Bid-gap
		if p.Side == types.Sell {
			price, candidate = tick.Ask, tick.Ask+gap
		}
		if strategy.ProfitPoints(p.Side, p.Entry, price, inst.Point) < float64(b.opts.Trailing.Trigger) {
			continue
		}
		candidate = roundPrice(candidate, inst.Digits)
		if !strategy.Tighter(p.Side, candidate, p.Stop) {
			continue
		}
		if err := b.broker.ModifyStop(ctx, p.Ticket, candidate); err != nil {
			b.log.Error("trailing_update_failed", logger.Int64("ticket", p.Ticket), logger.Err(err))
			continue
		}
		b.log.Info("trailing_updated", logger.Int64("ticket", p.Ticket), logger.Float64("from", p.Stop), logger.Float64("to", candidate))
	}
	return nil
}

func roundPrice(v float64, digits int) float64 {
	return decimal.NewFromFloat(v).Round(int32(digits)).InexactFloat64()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
