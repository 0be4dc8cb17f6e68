package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/trendsweep/types"
)

// Paper is an in-memory broker. Fills are perfect at the current quote
// (buys at the ask, sells at the bid) and protective stops are checked on
// every SetTick.
type Paper struct {
	mu          sync.RWMutex
	balance     float64
	commission  float64 // per lot, per fill
	instruments map[string]types.Instrument
	quotes      map[string]types.Tick
	bars        map[string][]types.Bar
	positions   map[int64]*types.Position
	deals       []types.Deal
	orders      []types.Order
	nextTicket  int64
	now         func() time.Time
}

// NewPaper creates a paper account holding startBalance.
func NewPaper(startBalance float64) *Paper {
	return &Paper{
		balance:     startBalance,
		instruments: make(map[string]types.Instrument),
		quotes:      make(map[string]types.Tick),
		bars:        make(map[string][]types.Bar),
		positions:   make(map[int64]*types.Position),
		nextTicket:  1,
		now:         time.Now,
	}
}

// WithClock replaces the wall clock used to stamp deals.
func (p *Paper) WithClock(now func() time.Time) *Paper {
	p.now = now
	return p
}

// WithCommission charges perLot on every fill.
func (p *Paper) WithCommission(perLot float64) *Paper {
	p.commission = perLot
	return p
}

// AddInstrument registers a tradable symbol.
func (p *Paper) AddInstrument(inst types.Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments[inst.Symbol] = inst
	return nil
}

// SetBars replaces the bar history served for (symbol, timeframe).
func (p *Paper) SetBars(symbol, timeframe string, bars []types.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol+"/"+timeframe] = append([]types.Bar(nil), bars...)
}

// SetTick updates the quote for symbol, revalues open positions and closes
// any whose stop the new quote crosses.
func (p *Paper) SetTick(symbol string, t types.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Time.IsZero() {
		t.Time = p.now()
	}
	p.quotes[symbol] = t
	for _, ticket := range p.ticketsLocked() {
		pos := p.positions[ticket]
		if pos.Symbol != symbol {
			continue
		}
		p.revalueLocked(pos)
		if pos.Stop == 0 {
			continue
		}
		exit := p.exitPriceLocked(pos)
		if (pos.Side == types.Buy && exit <= pos.Stop) || (pos.Side == types.Sell && exit >= pos.Stop) {
			p.closeLocked(ticket)
		}
	}
}

func (p *Paper) ticketsLocked() []int64 {
	out := make([]int64, 0, len(p.positions))
	for t := range p.positions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Paper) exitPriceLocked(pos *types.Position) float64 {
	q := p.quotes[pos.Symbol]
	if pos.Side == types.Buy {
		return q.Bid
	}
	return q.Ask
}

func (p *Paper) revalueLocked(pos *types.Position) {
	inst := p.instruments[pos.Symbol]
	diff := p.exitPriceLocked(pos) - pos.Entry
	if pos.Side == types.Sell {
		diff = -diff
	}
	pos.Profit = diff * pos.Qty * inst.ContractSize
}

func (p *Paper) closeLocked(ticket int64) {
	pos := p.positions[ticket]
	p.revalueLocked(pos)
	fee := -p.commission * pos.Qty
	p.balance += pos.Profit + fee
	p.deals = append(p.deals, types.Deal{
		Ticket:     ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Time:       p.now(),
		Qty:        pos.Qty,
		Price:      p.exitPriceLocked(pos),
		Profit:     pos.Profit,
		Commission: fee,
		Closing:    true,
	})
	delete(p.positions, ticket)
}

// Balance implements Broker.
func (p *Paper) Balance(context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance, nil
}

// Positions implements Broker. An empty symbol returns every position.
func (p *Paper) Positions(_ context.Context, symbol string) ([]types.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.Position
	for _, t := range p.ticketsLocked() {
		pos := p.positions[t]
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// DealsSince implements Broker.
func (p *Paper) DealsSince(_ context.Context, since time.Time) ([]types.Deal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.Deal
	for _, d := range p.deals {
		if !d.Time.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Tick implements Broker.
func (p *Paper) Tick(_ context.Context, symbol string) (types.Tick, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return types.Tick{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}

// SymbolInfo implements Broker.
func (p *Paper) SymbolInfo(_ context.Context, symbol string) (types.Instrument, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instruments[symbol]
	if !ok {
		return types.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return inst, nil
}

// RecentBars implements Broker.
func (p *Paper) RecentBars(ctx context.Context, symbol, timeframe string, n int) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars := p.bars[symbol+"/"+timeframe]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return append([]types.Bar(nil), bars...), nil
}

// Submit implements Broker.
func (p *Paper) Submit(ctx context.Context, o types.Order) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instruments[o.Symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, o.Symbol)
	}
	if o.Qty <= 0 || !inst.AllowsVolume(o.Qty) {
		return 0, fmt.Errorf("%w: %s %v", ErrInvalidVolume, o.Symbol, o.Qty)
	}
	q, ok := p.quotes[o.Symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, o.Symbol)
	}
	fill := q.Ask
	if o.Side == types.Sell {
		fill = q.Bid
	}
	if o.Stop != 0 && ((o.Side == types.Buy && o.Stop >= fill) || (o.Side == types.Sell && o.Stop <= fill)) {
		return 0, fmt.Errorf("%w: %s %s stop %v fill %v", ErrInvalidStopSide, o.Side, o.Symbol, o.Stop, fill)
	}

	ticket := p.nextTicket
	p.nextTicket++
	fee := -p.commission * o.Qty
	p.balance += fee
	p.positions[ticket] = &types.Position{
		Ticket: ticket,
		Symbol: o.Symbol,
		Side:   o.Side,
		Qty:    o.Qty,
		Entry:  fill,
		Stop:   o.Stop,
		Target: o.Target,
	}
	p.revalueLocked(p.positions[ticket])
	p.deals = append(p.deals, types.Deal{
		Ticket:     ticket,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Time:       p.now(),
		Qty:        o.Qty,
		Price:      fill,
		Commission: fee,
	})
	o.Price = fill
	p.orders = append(p.orders, o)
	return ticket, nil
}

// Close implements Broker.
func (p *Paper) Close(_ context.Context, ticket int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[ticket]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTicket, ticket)
	}
	p.closeLocked(ticket)
	return nil
}

// ModifyStop implements Broker.
func (p *Paper) ModifyStop(_ context.Context, ticket int64, stop float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTicket, ticket)
	}
	exit := p.exitPriceLocked(pos)
	if (pos.Side == types.Buy && stop >= exit) || (pos.Side == types.Sell && stop <= exit) {
		return fmt.Errorf("%w: %s stop %v price %v", ErrInvalidStopSide, pos.Side, stop, exit)
	}
	pos.Stop = stop
	return nil
}

// Orders returns a copy of every accepted order, filled price included.
func (p *Paper) Orders() []types.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Order, len(p.orders))
	copy(out, p.orders)
	return out
}
