// Package indicator turns a bar series into the per-bar columns the
// strategy filters on: trend signal, trend strength and momentum.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/trendsweep/types"
)

var (
	ErrMisaligned    = errors.New("indicator columns not aligned with bars")
	ErrNotEnoughBars = errors.New("not enough bars for indicator warm-up")
)

// Frame is a bar series augmented with indicator columns. Row i of every
// column belongs to Bars[i]. Undefined numeric values are NaN. A Frame is
// never modified after construction and may be shared between goroutines.
type Frame struct {
	Bars     []types.Bar
	Signal   []types.Signal
	Strength []float64
	Momentum []float64
}

// NewFrame assembles a Frame, enforcing the alignment invariant.
func NewFrame(bars []types.Bar, signal []types.Signal, strength, momentum []float64) (*Frame, error) {
	n := len(bars)
	if len(signal) != n || len(strength) != n || len(momentum) != n {
		return nil, fmt.Errorf("%w: bars=%d signal=%d strength=%d momentum=%d",
			ErrMisaligned, n, len(signal), len(strength), len(momentum))
	}
	return &Frame{Bars: bars, Signal: signal, Strength: strength, Momentum: momentum}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// Ready reports whether every column of row i is defined.
func (f *Frame) Ready(i int) bool {
	return f.Signal[i] != types.SignalUndefined &&
		!math.IsNaN(f.Strength[i]) &&
		!math.IsNaN(f.Momentum[i]) &&
		!math.IsNaN(f.Bars[i].Close)
}

// Key identifies the indicator-relevant part of a ParameterSet. Two sets
// with the same Key produce identical frames for the same bars.
type Key struct {
	SuperTrendPeriod     int
	SuperTrendMultiplier float64
	ADXPeriod            int
	RSIPeriod            int
}

// KeyOf extracts the Key of p.
func KeyOf(p types.ParameterSet) Key {
	return Key{
		SuperTrendPeriod:     p.SuperTrendPeriod,
		SuperTrendMultiplier: p.SuperTrendMultiplier,
		ADXPeriod:            p.ADXPeriod,
		RSIPeriod:            p.RSIPeriod,
	}
}

// Provider computes a Frame. Implementations must be pure: identical
// inputs give identical frames, and no state survives between calls.
type Provider interface {
	Compute(bars []types.Bar, p types.ParameterSet) (*Frame, error)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
