package types

import (
	"errors"
	"fmt"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Signal is the categorical trend state produced per bar.
type Signal string

const (
	SignalUndefined Signal = ""
	SignalHold      Signal = "hold"
	SignalBuy       Signal = "buy"
	SignalSell      Signal = "sell"
)

// Bar is one OHLCV candle. Time is the venue wall clock stored in UTC,
// it carries no timezone meaning of its own.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

var ErrUnorderedSeries = errors.New("bar timestamps must be strictly increasing")

// ValidateSeries checks the ordering invariant of a bar series.
func ValidateSeries(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: index %d (%s <= %s)", ErrUnorderedSeries, i,
				bars[i].Time.Format(time.DateTime), bars[i-1].Time.Format(time.DateTime))
		}
	}
	return nil
}

// Order is a market order sent to a broker.
type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // reference price; fills are at market
	Stop   float64 // 0 = none
	Target float64 // 0 = none
	// meta
	Comment string
}

// Position is an open broker position.
type Position struct {
	Ticket int64
	Symbol string
	Side   Side
	Qty    float64
	Entry  float64
	Stop   float64
	Target float64
	Profit float64 // floating P&L in account currency
}

// Deal is a realised fill reported by the broker.
type Deal struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Time       time.Time
	Qty        float64
	Price      float64
	Profit     float64
	Commission float64
	Swap       float64
	Closing    bool // true when the deal closed (part of) a position
}

// Tick is the current top of book for a symbol.
type Tick struct {
	Bid  float64
	Ask  float64
	Time time.Time
}
