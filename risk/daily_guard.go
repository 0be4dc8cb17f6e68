package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/trendsweep/types"
)

// Account is the read side of a broker the live loss guard needs.
type Account interface {
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context, symbol string) ([]types.Position, error)
	DealsSince(ctx context.Context, since time.Time) ([]types.Deal, error)
}

// DailyGuard stops live trading once today's closed plus floating P&L
// reaches the daily loss limit. Days start at midnight in loc.
type DailyGuard struct {
	acct    Account
	loc     *time.Location
	limit   float64
	enabled bool
	now     func() time.Time
	today   time.Time
	lastPnL float64
}

// NewDailyGuard builds a guard; with enabled=false ShouldStop is always
// false, matching a non-funded account.
func NewDailyGuard(acct Account, startBalance, dailyLossPercent float64, loc *time.Location, enabled bool) *DailyGuard {
	if loc == nil {
		loc = time.UTC
	}
	g := &DailyGuard{
		acct:    acct,
		loc:     loc,
		limit:   startBalance * dailyLossPercent / 100,
		enabled: enabled,
		now:     time.Now,
	}
	g.today = g.midnight(g.now())
	return g
}

// WithClock replaces the wall clock, for tests.
func (g *DailyGuard) WithClock(now func() time.Time) *DailyGuard {
	g.now = now
	g.today = g.midnight(now())
	return g
}

func (g *DailyGuard) midnight(t time.Time) time.Time {
	y, m, d := t.In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.loc)
}

// UpdateDay rolls the tracked day over when the local date changes. It
// reports whether a rollover happened.
func (g *DailyGuard) UpdateDay() bool {
	m := g.midnight(g.now())
	if m.Equal(g.today) {
		return false
	}
	g.today = m
	return true
}

// DailyPnL sums realised P&L (profit, commission, swap of closing deals)
// since local midnight and the floating P&L of open positions.
func (g *DailyGuard) DailyPnL(ctx context.Context) (float64, error) {
	g.UpdateDay()
	deals, err := g.acct.DealsSince(ctx, g.today)
	if err != nil {
		return 0, fmt.Errorf("deals since %s: %w", g.today.Format(time.DateOnly), err)
	}
	closed := 0.0
	for _, d := range deals {
		if d.Closing {
			closed += d.Profit + d.Commission + d.Swap
		}
	}
	positions, err := g.acct.Positions(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("open positions: %w", err)
	}
	floating := 0.0
	for _, p := range positions {
		floating += p.Profit
	}
	return closed + floating, nil
}

// ShouldStop reports whether today's P&L is at or below -limit.
func (g *DailyGuard) ShouldStop(ctx context.Context) (bool, error) {
	if !g.enabled {
		return false, nil
	}
	pnl, err := g.DailyPnL(ctx)
	if err != nil {
		return false, err
	}
	g.lastPnL = pnl
	return pnl <= -g.limit, nil
}

// Limit returns the daily loss limit in account currency.
func (g *DailyGuard) Limit() float64 { return g.limit }

// LastPnL returns the P&L seen by the most recent ShouldStop.
func (g *DailyGuard) LastPnL() float64 { return g.lastPnL }
