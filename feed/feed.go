// Package feed supplies bar series and instrument metadata to the sweep.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evdnx/trendsweep/types"
)

var (
	ErrNoData            = errors.New("no bars in range")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Source is where bars come from.
type Source interface {
	// Bars returns the bars of symbol/timeframe with from <= t <= to, in
	// strictly increasing time order. Zero bounds are open.
	Bars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]types.Bar, error)
	Instrument(ctx context.Context, symbol string) (types.Instrument, error)
}

// Instruments is a static symbol -> metadata table.
type Instruments map[string]types.Instrument

// Lookup returns the metadata of symbol, validated.
func (m Instruments) Lookup(symbol string) (types.Instrument, error) {
	inst, ok := m[symbol]
	if !ok {
		return types.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	if inst.Symbol == "" {
		inst.Symbol = symbol
	}
	if err := inst.Validate(); err != nil {
		return types.Instrument{}, err
	}
	return inst, nil
}

// InRange keeps the bars with from <= t <= to. The input must be sorted.
func InRange(bars []types.Bar, from, to time.Time) []types.Bar {
	lo, hi := 0, len(bars)
	if !from.IsZero() {
		for lo < hi && bars[lo].Time.Before(from) {
			lo++
		}
	}
	if !to.IsZero() {
		for hi > lo && bars[hi-1].Time.After(to) {
			hi--
		}
	}
	return bars[lo:hi]
}

// Interval maps terminal timeframe names (M5, H1, D1) to the interval
// labels used by the bar store (5m, 1h, 1d). Unknown names pass through
// lower-cased.
func Interval(timeframe string) string {
	tf := strings.ToUpper(strings.TrimSpace(timeframe))
	if len(tf) >= 2 {
		unit := map[byte]string{'M': "m", 'H': "h", 'D': "d", 'W': "w"}[tf[0]]
		if unit != "" && isDigits(tf[1:]) {
			return tf[1:] + unit
		}
	}
	return strings.ToLower(strings.TrimSpace(timeframe))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
