// Package sink persists sweep results: the best-parameters file the live
// loop reads, and an optional SQLite history of runs and trades.
package sink

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/evdnx/trendsweep/backtest"
	"github.com/evdnx/trendsweep/sweep"
	"github.com/evdnx/trendsweep/types"
)

// Profit is a result profit. Rejected results (-Inf) are written as JSON
// null and null reads back as -Inf.
type Profit float64

// MarshalJSON implements json.Marshaler.
func (p Profit) MarshalJSON() ([]byte, error) {
	f := float64(p)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Profit) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Profit(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*p = Profit(f)
	return nil
}

// Valid reports whether p is a real profit rather than the rejected marker.
func (p Profit) Valid() bool { return !math.IsInf(float64(p), 0) && !math.IsNaN(float64(p)) }

// Record is the persisted outcome of one (symbol, timeframe) pair.
type Record struct {
	RunID         string             `json:"run_id"`
	Symbol        string             `json:"instrument"`
	Timeframe     string             `json:"timeframe"`
	BestParams    types.ParameterSet `json:"best_parameters"`
	BestProfit    Profit             `json:"best_profit"`
	CellsTested   int                `json:"total_cells_tested"`
	CellsRejected int                `json:"rejected_cells"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Summary is the sweep result file. The top-level winner fields are what
// the live loop consumes. Instrument and BestParameters repeat Symbol and
// BestParams under the per-pair key names.
type Summary struct {
	RunID          string             `json:"run_id"`
	Symbol         string             `json:"symbol"`
	Instrument     string             `json:"instrument"`
	Timeframe      string             `json:"timeframe"`
	BestParams     types.ParameterSet `json:"best_params"`
	BestParameters types.ParameterSet `json:"best_parameters"`
	BestProfit     Profit             `json:"best_profit"`
	CellsTested    int                `json:"total_cells_tested"`
	CellsRejected  int                `json:"rejected_cells"`
	CreatedAt      time.Time          `json:"created_at"`
	Pairs          []Record           `json:"pairs"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// FromReport turns a sweep report into its persisted form. A report with
// no searched pair still yields a Summary, with a null profit.
func FromReport(runID string, rep sweep.Report, now time.Time) Summary {
	s := Summary{
		RunID:         runID,
		BestProfit:    Profit(backtest.Sentinel),
		CellsTested:   rep.Tested(),
		CellsRejected: rep.Rejected(),
		CreatedAt:     now.UTC(),
		Pairs:         make([]Record, 0, len(rep.Pairs)),
	}
	for _, p := range rep.Pairs {
		s.Pairs = append(s.Pairs, Record{
			RunID:         runID,
			Symbol:        p.Symbol,
			Timeframe:     p.Timeframe,
			BestParams:    p.Best.Params,
			BestProfit:    Profit(p.Best.Profit),
			CellsTested:   p.Tested,
			CellsRejected: p.Rejected,
			CreatedAt:     s.CreatedAt,
		})
	}
	if rep.HasBest {
		s.Symbol = rep.Best.Symbol
		s.Instrument = rep.Best.Symbol
		s.Timeframe = rep.Best.Timeframe
		s.BestParams = rep.Best.Best.Params
		s.BestParameters = rep.Best.Best.Params
		s.BestProfit = Profit(rep.Best.Best.Profit)
	}
	return s
}

// Sink stores sweep output.
type Sink interface {
	Save(ctx context.Context, s Summary) error
	SaveTrades(ctx context.Context, runID string, trades []backtest.Trade) error
	Close() error
}

// Noop discards everything.
type Noop struct{}

func (Noop) Save(context.Context, Summary) error                        { return nil }
func (Noop) SaveTrades(context.Context, string, []backtest.Trade) error { return nil }
func (Noop) Close() error                                               { return nil }

// Multi fans every call out to all sinks and combines their errors.
type Multi []Sink

// Save implements Sink.
func (m Multi) Save(ctx context.Context, s Summary) error {
	var err error
	for _, k := range m {
		err = multierr.Append(err, k.Save(ctx, s))
	}
	return err
}

// SaveTrades implements Sink.
func (m Multi) SaveTrades(ctx context.Context, runID string, trades []backtest.Trade) error {
	var err error
	for _, k := range m {
		err = multierr.Append(err, k.SaveTrades(ctx, runID, trades))
	}
	return err
}

// Close implements Sink.
func (m Multi) Close() error {
	var err error
	for _, k := range m {
		err = multierr.Append(err, k.Close())
	}
	return err
}
