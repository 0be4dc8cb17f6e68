// Package strategy holds the trading rules of the SuperTrend + ADX + RSI
// strategy. The backtest simulator and the live loop both decide entries
// and trail stops through these functions, so a rule change lands in both.
package strategy

import (
	"math"

	"github.com/evdnx/trendsweep/types"
)

// Stable debounces a trend signal: it returns cur when the previous bar
// agreed with it and SignalHold otherwise.
func Stable(prev, cur types.Signal) types.Signal {
	if cur == types.SignalUndefined || cur != prev {
		return types.SignalHold
	}
	return cur
}

// Entry decides whether a bar qualifies for an entry. It requires a stable
// buy or sell signal, trend strength at or above the threshold and momentum
// inside the inclusive oversold/overbought band.
func Entry(prev, cur types.Signal, strength, momentum float64, p types.ParameterSet) (types.Side, bool) {
	if math.IsNaN(strength) || math.IsNaN(momentum) {
		return "", false
	}
	if strength < p.ADXThreshold || !p.MomentumInBand(momentum) {
		return "", false
	}
	switch Stable(prev, cur) {
	case types.SignalBuy:
		return types.Buy, true
	case types.SignalSell:
		return types.Sell, true
	}
	return "", false
}

// InitialStop places the protective stop stopPoints away from entry on the
// losing side of the position.
func InitialStop(side types.Side, entry float64, stopPoints int, point float64) float64 {
	d := float64(stopPoints) * point
	if side == types.Buy {
		return entry - d
	}
	return entry + d
}

// ProfitPoints is the open profit of a position in points. Negative when
// the position is losing.
func ProfitPoints(side types.Side, entry, price, point float64) float64 {
	if side == types.Buy {
		return (price - entry) / point
	}
	return (entry - price) / point
}

// Trailing holds the trailing-stop distances in points.
type Trailing struct {
	Trigger  int // open profit that arms the trail
	Distance int // gap kept between price and stop
}

// Trail applies the trailing rule to an open position at price. Once the
// open profit reaches the trigger the stop follows price at Distance, and
// it only ever tightens. exit reports that price has crossed the stop.
func (t Trailing) Trail(side types.Side, entry, stop, price, point float64) (newStop float64, exit bool) {
	newStop = stop
	armed := ProfitPoints(side, entry, price, point) >= float64(t.Trigger)
	gap := float64(t.Distance) * point
	if side == types.Buy {
		if armed {
			newStop = math.Max(stop, price-gap)
		}
		return newStop, price <= newStop
	}
	if armed {
		newStop = math.Min(stop, price+gap)
	}
	return newStop, price >= newStop
}

// Tighter reports whether candidate is a strictly better stop than current
// for side. A zero current stop means none is set.
func Tighter(side types.Side, candidate, current float64) bool {
	if current == 0 {
		return true
	}
	if side == types.Buy {
		return candidate > current
	}
	return candidate < current
}
