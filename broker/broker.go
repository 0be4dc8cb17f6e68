// Package broker is the trading venue seen by the live loop.
package broker

import (
	"context"
	"errors"

	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/types"
)

var (
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrUnknownTicket   = errors.New("unknown ticket")
	ErrInvalidVolume   = errors.New("volume outside instrument bounds")
	ErrNoQuote         = errors.New("no quote for symbol")
	ErrInvalidStopSide = errors.New("stop is on the wrong side of the price")
)

// Broker exposes the account, market data and order routing of a venue.
// The account half is what the daily loss guard needs.
type Broker interface {
	risk.Account

	Tick(ctx context.Context, symbol string) (types.Tick, error)
	SymbolInfo(ctx context.Context, symbol string) (types.Instrument, error)
	// RecentBars returns up to n closed bars, oldest first.
	RecentBars(ctx context.Context, symbol, timeframe string, n int) ([]types.Bar, error)

	// Submit opens a market position and returns its ticket.
	Submit(ctx context.Context, o types.Order) (int64, error)
	Close(ctx context.Context, ticket int64) error
	ModifyStop(ctx context.Context, ticket int64, stop float64) error
}
