package indicator

import (
	"fmt"
	"math"

	"github.com/evdnx/goti"

	"github.com/evdnx/trendsweep/types"
)

// Standard computes SuperTrend and ADX with Wilder smoothing and takes the
// momentum column from goti's streaming RSI.
type Standard struct{}

// Compute implements Provider.
func (Standard) Compute(bars []types.Bar, p types.ParameterSet) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: have %d bars", ErrNotEnoughBars, len(bars))
	}
	momentum, err := RSI(bars, p.RSIPeriod)
	if err != nil {
		return nil, err
	}
	signal := trendSignals(bars, p)
	strength := ffill(ADX(bars, p.ADXPeriod))
	return NewFrame(bars, signal, strength, ffill(momentum))
}

// MoneyFlow gates entries on goti's volume-weighted money flow index
// instead of RSI. It reads the RSI period and bands of the ParameterSet.
type MoneyFlow struct{}

// Compute implements Provider.
func (MoneyFlow) Compute(bars []types.Bar, p types.ParameterSet) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: have %d bars", ErrNotEnoughBars, len(bars))
	}
	momentum, err := MFI(bars, p.RSIPeriod)
	if err != nil {
		return nil, err
	}
	signal := trendSignals(bars, p)
	strength := ffill(ADX(bars, p.ADXPeriod))
	return NewFrame(bars, signal, strength, ffill(momentum))
}

// RSI streams closes through goti's Wilder RSI. Values before the first
// full window are NaN; the first defined value is at index period.
func RSI(bars []types.Bar, period int) ([]float64, error) {
	rsi, err := goti.NewRelativeStrengthIndexWithParams(period, goti.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("goti rsi: %w", err)
	}
	out := nanSlice(len(bars))
	for i, b := range bars {
		if err := rsi.Add(b.Close); err != nil {
			return nil, fmt.Errorf("goti rsi bar %d: %w", i, err)
		}
		if i < period {
			continue
		}
		if v, err := rsi.Calculate(); err == nil && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out, nil
}

// MFI streams bars through goti's money flow index with the same warm-up
// as RSI.
func MFI(bars []types.Bar, period int) ([]float64, error) {
	mfi, err := goti.NewMoneyFlowIndexWithParams(period, goti.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("goti mfi: %w", err)
	}
	out := nanSlice(len(bars))
	for i, b := range bars {
		if err := mfi.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
			return nil, fmt.Errorf("goti mfi bar %d: %w", i, err)
		}
		if i < period {
			continue
		}
		if v, err := mfi.Calculate(); err == nil && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out, nil
}

func trendSignals(bars []types.Bar, p types.ParameterSet) []types.Signal {
	dir := SuperTrend(bars, p.SuperTrendPeriod, p.SuperTrendMultiplier)
	out := make([]types.Signal, len(dir))
	for i, d := range dir {
		switch d {
		case 1:
			out[i] = types.SignalBuy
		case -1:
			out[i] = types.SignalSell
		default:
			out[i] = types.SignalUndefined
		}
	}
	return out
}

// ffill carries the last defined value forward. Leading NaNs stay NaN.
func ffill(v []float64) []float64 {
	last := math.NaN()
	for i, x := range v {
		if math.IsNaN(x) {
			v[i] = last
			continue
		}
		last = x
	}
	return v
}
