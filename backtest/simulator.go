// Package backtest walks an indicator frame bar by bar for one parameter
// set and reports the realised profit.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/strategy"
	"github.com/evdnx/trendsweep/types"
)

// Rejection reasons reported in Result.Reason.
const (
	ReasonNoData        = "no_data"
	ReasonInvalidFrame  = "invalid_frame"
	ReasonInstrument    = "invalid_instrument"
	ReasonParams        = "invalid_params"
	ReasonMaxTotalLoss  = "max_total_loss"
	ReasonInvalidResult = "invalid_result"
	ReasonPanic         = "panic"
)

// Trade exit reasons.
const (
	ExitStop    = "stop"
	ExitReverse = "reverse"
)

// Sentinel is the profit of a rejected run. It loses every comparison.
var Sentinel = math.Inf(-1)

// IsSentinel reports whether profit marks a rejected run.
func IsSentinel(profit float64) bool { return math.IsInf(profit, -1) }

// Trade is one closed round trip.
type Trade struct {
	Side      types.Side `json:"side"`
	EntryTime time.Time  `json:"entry_time"`
	ExitTime  time.Time  `json:"exit_time"`
	Entry     float64    `json:"entry"`
	Exit      float64    `json:"exit"`
	PnL       float64    `json:"pnl"`
	Reason    string     `json:"reason"`
}

// Result is the outcome of one simulation run.
type Result struct {
	Params   types.ParameterSet
	Profit   float64 // balance - start balance, or Sentinel
	Trades   int     // positions opened
	Rejected bool
	Reason   string
	Journal  []Trade
}

// Reject builds the sentinel result of a run that could not be scored.
func Reject(p types.ParameterSet, reason string) Result {
	return Result{Params: p, Profit: Sentinel, Rejected: true, Reason: reason}
}

// Simulator runs the trading rules over indicator frames. It holds only
// configuration, so one Simulator may serve any number of goroutines.
type Simulator struct {
	cfg Config
}

// NewSimulator builds a Simulator from an immutable config.
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

// Config returns the simulator configuration.
func (s *Simulator) Config() Config { return s.cfg }

// WithJournal returns a copy of s that records closed trades.
func (s *Simulator) WithJournal() *Simulator {
	cfg := s.cfg
	cfg.Journal = true
	return &Simulator{cfg: cfg}
}

// position is the open position of one run. A zero side means flat.
type position struct {
	side      types.Side
	entry     float64
	stop      float64
	entryTime time.Time
}

// account is the mutable state of one run.
type account struct {
	cfg     *Config
	inst    types.Instrument
	balance float64
	pos     position
	opened  int
	journal []Trade
}

func (a *account) fee() float64 { return a.cfg.CommissionPerLot * a.cfg.Lot }

// fillPrice is the fill of a market order on side at bar close price.
func (a *account) fillPrice(side types.Side, price float64) float64 {
	if side == types.Buy {
		return price + a.cfg.SpreadPoints*a.inst.Point
	}
	return price
}

func (a *account) open(side types.Side, price float64, stopPoints int, ts time.Time) {
	entry := a.fillPrice(side, price)
	a.balance -= a.fee()
	a.pos = position{
		side:      side,
		entry:     entry,
		stop:      strategy.InitialStop(side, entry, stopPoints, a.inst.Point),
		entryTime: ts,
	}
	a.opened++
}

func (a *account) close(price float64, ts time.Time, reason string) {
	exit := a.fillPrice(a.pos.side.Opposite(), price)
	delta := exit - a.pos.entry
	if a.pos.side == types.Sell {
		delta = -delta
	}
	pnl := risk.CalcPnL(a.cfg.Lot, a.inst.ContractSize, delta)
	a.balance += pnl - a.fee()
	if a.cfg.Journal {
		a.journal = append(a.journal, Trade{
			Side:      a.pos.side,
			EntryTime: a.pos.entryTime,
			ExitTime:  ts,
			Entry:     a.pos.entry,
			Exit:      exit,
			PnL:       pnl,
			Reason:    reason,
		})
	}
	a.pos = position{}
}

// stopPoints resolves the initial stop distance for p.
func (s *Simulator) stopPoints(p types.ParameterSet) int {
	if s.cfg.StopSource == config.StopFixed || p.StopLossPoints <= 0 {
		return s.cfg.DefaultStopPoints
	}
	return p.StopLossPoints
}

func (s *Simulator) trailing(p types.ParameterSet) strategy.Trailing {
	t := strategy.Trailing{Trigger: p.TrailingTriggerPoints, Distance: p.TrailingDistancePoints}
	if t.Trigger <= 0 {
		t.Trigger = s.cfg.TrailingTriggerPoints
	}
	if t.Distance <= 0 {
		t.Distance = s.cfg.TrailingDistancePoints
	}
	return t
}

// Run simulates p over frame. It never panics and never returns NaN: any
// failure yields a rejected Result carrying the Sentinel profit.
func (s *Simulator) Run(frame *indicator.Frame, inst types.Instrument, p types.ParameterSet) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Reject(p, ReasonPanic)
			res.Reason = fmt.Sprintf("%s: %v", ReasonPanic, r)
		}
	}()

	n := frame.Len()
	switch {
	case n == 0:
		return Reject(p, ReasonNoData)
	case len(frame.Signal) != n || len(frame.Strength) != n || len(frame.Momentum) != n:
		return Reject(p, ReasonInvalidFrame)
	}
	if err := inst.Validate(); err != nil {
		return Reject(p, ReasonInstrument)
	}
	if err := p.Validate(); err != nil {
		return Reject(p, ReasonParams)
	}

	gov := risk.NewGovernor(s.cfg.StartBalance, s.cfg.DailyLossPercent, s.cfg.MaxTotalLossPercent)
	acct := &account{cfg: &s.cfg, inst: inst, balance: s.cfg.StartBalance}
	stopPts := s.stopPoints(p)
	trail := s.trailing(p)

	for i := 1; i < n; i++ {
		bar := frame.Bars[i]
		gov.UpdateDay(bar.Time, acct.balance)
		if s.cfg.FundedMode {
			if gov.MaxTotalLossExceeded(acct.balance) {
				res = Reject(p, ReasonMaxTotalLoss)
				res.Trades = acct.opened
				res.Journal = acct.journal
				return res
			}
			if gov.DailyLossExceeded(acct.balance) {
				continue
			}
		}
		if !s.cfg.Session.Allowed(bar.Time) || !frame.Ready(i) {
			continue
		}

		price := bar.Close
		if side, ok := strategy.Entry(frame.Signal[i-1], frame.Signal[i], frame.Strength[i], frame.Momentum[i], p); ok && acct.pos.side != side {
			if acct.pos.side != "" {
				acct.close(price, bar.Time, ExitReverse)
			}
			acct.open(side, price, stopPts, bar.Time)
		}

		if acct.pos.side != "" {
			stop, exit := trail.Trail(acct.pos.side, acct.pos.entry, acct.pos.stop, price, inst.Point)
			acct.pos.stop = stop
			if exit {
				acct.close(price, bar.Time, ExitStop)
			}
		}
	}

	res = Result{
		Params:  p,
		Profit:  acct.balance - s.cfg.StartBalance,
		Trades:  acct.opened,
		Journal: acct.journal,
	}
	if math.IsNaN(res.Profit) || math.IsInf(res.Profit, 0) {
		res.Profit = Sentinel
		res.Rejected = true
		res.Reason = ReasonInvalidResult
	}
	return res
}
