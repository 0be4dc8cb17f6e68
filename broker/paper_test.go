package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/types"
)

var _ Broker = (*Paper)(nil)

func newTestPaper(t *testing.T) *Paper {
	t.Helper()
	clock := time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)
	p := NewPaper(10_000).WithClock(func() time.Time { return clock })
	if err := p.AddInstrument(types.Instrument{Symbol: "XYZ", Point: 1, ContractSize: 10, VolumeMin: 0.1, VolumeMax: 5}); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	p.SetTick("XYZ", types.Tick{Bid: 100, Ask: 101})
	return p
}

func TestPaperSubmitAndClose(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	ticket, err := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Buy, Qty: 1, Stop: 90})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pos, _ := p.Positions(ctx, "XYZ")
	if len(pos) != 1 || pos[0].Entry != 101 || pos[0].Profit != -10 {
		t.Fatalf("unexpected position %+v", pos)
	}

	p.SetTick("XYZ", types.Tick{Bid: 110, Ask: 111})
	if err := p.Close(ctx, ticket); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if bal, _ := p.Balance(ctx); bal != 10_090 {
		t.Fatalf("expected balance 10090, got %v", bal)
	}
	if orders := p.Orders(); len(orders) != 1 || orders[0].Price != 101 {
		t.Fatalf("unexpected orders %+v", orders)
	}
	if err := p.Close(ctx, ticket); !errors.Is(err, ErrUnknownTicket) {
		t.Fatalf("expected ErrUnknownTicket, got %v", err)
	}
}

func TestPaperStopHitOnTick(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()
	if _, err := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Sell, Qty: 2, Stop: 105}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.SetTick("XYZ", types.Tick{Bid: 104, Ask: 105})

	if pos, _ := p.Positions(ctx, ""); len(pos) != 0 {
		t.Fatalf("stop should have closed the short, got %+v", pos)
	}
	deals, _ := p.DealsSince(ctx, time.Time{})
	if len(deals) != 2 || !deals[1].Closing || deals[1].Profit != -100 {
		t.Fatalf("unexpected deals %+v", deals)
	}
}

func TestPaperRejects(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	if _, err := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Buy, Qty: 10}); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("expected ErrInvalidVolume, got %v", err)
	}
	if _, err := p.Submit(ctx, types.Order{Symbol: "ABC", Side: types.Buy, Qty: 1}); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Buy, Qty: 1, Stop: 102}); !errors.Is(err, ErrInvalidStopSide) {
		t.Fatalf("expected ErrInvalidStopSide, got %v", err)
	}
	ticket, err := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Buy, Qty: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.ModifyStop(ctx, ticket, 100); !errors.Is(err, ErrInvalidStopSide) {
		t.Fatalf("stop at the bid should be rejected, got %v", err)
	}
	if err := p.ModifyStop(ctx, ticket, 95); err != nil {
		t.Fatalf("ModifyStop: %v", err)
	}
}

func TestPaperRecentBars(t *testing.T) {
	p := newTestPaper(t)
	start := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	var bars []types.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, types.Bar{Time: start.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}
	p.SetBars("XYZ", "H1", bars)

	got, err := p.RecentBars(context.Background(), "XYZ", "H1", 3)
	if err != nil {
		t.Fatalf("RecentBars: %v", err)
	}
	if len(got) != 3 || got[0].Close != 7 || got[2].Close != 9 {
		t.Fatalf("unexpected bars %+v", got)
	}
}

func TestPaperFeedsDailyGuard(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()
	ticket, _ := p.Submit(ctx, types.Order{Symbol: "XYZ", Side: types.Buy, Qty: 5})
	p.SetTick("XYZ", types.Tick{Bid: 92, Ask: 93})
	if err := p.Close(ctx, ticket); err != nil {
		t.Fatalf("Close: %v", err)
	}

	now := time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)
	g := risk.NewDailyGuard(p, 10_000, 4.5, time.UTC, true).WithClock(func() time.Time { return now })
	stop, err := g.ShouldStop(ctx)
	if err != nil {
		t.Fatalf("ShouldStop: %v", err)
	}
	if !stop || g.LastPnL() != -450 {
		t.Fatalf("expected stop at -450, got stop=%v pnl=%v", stop, g.LastPnL())
	}
}
