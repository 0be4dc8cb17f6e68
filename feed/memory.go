package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/trendsweep/types"
)

// MemorySource serves bars held in memory.
type MemorySource struct {
	mu          sync.RWMutex
	series      map[string][]types.Bar
	instruments Instruments
}

// NewMemorySource returns an empty source knowing instruments.
func NewMemorySource(instruments Instruments) *MemorySource {
	return &MemorySource{series: make(map[string][]types.Bar), instruments: instruments}
}

func seriesKey(symbol, timeframe string) string { return symbol + "_" + timeframe }

// Put stores a series after checking its ordering.
func (m *MemorySource) Put(symbol, timeframe string, bars []types.Bar) error {
	if err := types.ValidateSeries(bars); err != nil {
		return fmt.Errorf("%s %s: %w", symbol, timeframe, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[seriesKey(symbol, timeframe)] = bars
	return nil
}

// Bars implements Source.
func (m *MemorySource) Bars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := m.series[seriesKey(symbol, timeframe)]
	m.mu.RUnlock()
	bars := InRange(all, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	return bars, nil
}

// Instrument implements Source.
func (m *MemorySource) Instrument(_ context.Context, symbol string) (types.Instrument, error) {
	return m.instruments.Lookup(symbol)
}
