package risk

import "time"

// Governor enforces the funded-account loss ceilings of one simulated
// account run. It is not safe for concurrent use; every run owns its own.
type Governor struct {
	startBalance   float64
	dailyLimit     float64
	maxTotalLoss   float64
	day            time.Time
	dayStart       float64
	dayStartLoaded bool
}

// NewGovernor derives both limits from the starting balance.
func NewGovernor(startBalance, dailyLossPercent, maxTotalLossPercent float64) *Governor {
	return &Governor{
		startBalance: startBalance,
		dailyLimit:   startBalance * dailyLossPercent / 100,
		maxTotalLoss: startBalance * maxTotalLossPercent / 100,
	}
}

// UpdateDay snapshots balance as the day-start balance whenever ts falls
// on a new calendar day. Repeated calls within a day are no-ops.
func (g *Governor) UpdateDay(ts time.Time, balance float64) {
	d := dayOf(ts)
	if d.Equal(g.day) && g.dayStartLoaded {
		return
	}
	g.day = d
	g.dayStart = balance
	g.dayStartLoaded = true
}

// DailyLossExceeded reports whether today's loss reached the daily limit.
// Without a recorded day-start balance the current balance becomes it.
func (g *Governor) DailyLossExceeded(balance float64) bool {
	if !g.dayStartLoaded {
		g.dayStart = balance
		g.dayStartLoaded = true
	}
	return g.dayStart-balance >= g.dailyLimit
}

// MaxTotalLossExceeded reports whether the cumulative loss reached the
// account-wide limit.
func (g *Governor) MaxTotalLossExceeded(balance float64) bool {
	return g.startBalance-balance >= g.maxTotalLoss
}

// DayStart returns the balance recorded at the start of the current day.
func (g *Governor) DayStart() (float64, bool) { return g.dayStart, g.dayStartLoaded }

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
