package risk

import (
	"context"
	"testing"
	"time"

	"github.com/evdnx/trendsweep/types"
)

func day(d, hh int) time.Time {
	return time.Date(2025, 4, d, hh, 0, 0, 0, time.UTC)
}

func TestGovernorDailyLossResetsOnNewDay(t *testing.T) {
	g := NewGovernor(10_000, 4.5, 10) // daily limit 450, total 1000

	g.UpdateDay(day(7, 9), 10_000)
	if g.DailyLossExceeded(9_600) {
		t.Fatal("loss of 400 is below the 450 limit")
	}
	if !g.DailyLossExceeded(9_550) {
		t.Fatal("loss of exactly 450 must trip the daily limit")
	}

	// same day: snapshot must not move
	g.UpdateDay(day(7, 15), 9_550)
	if start, _ := g.DayStart(); start != 10_000 {
		t.Fatalf("day start moved within the day: %v", start)
	}

	// next day: the losing balance becomes the new baseline
	g.UpdateDay(day(8, 7), 9_550)
	if g.DailyLossExceeded(9_550) {
		t.Fatal("new day should start with a clean daily loss")
	}
}

func TestGovernorLazyDayStart(t *testing.T) {
	g := NewGovernor(10_000, 1, 10)
	if g.DailyLossExceeded(5_000) {
		t.Fatal("first call without a day start must never trip")
	}
	if start, ok := g.DayStart(); !ok || start != 5_000 {
		t.Fatalf("lazy day start not recorded: %v %v", start, ok)
	}
}

func TestGovernorMaxTotalLoss(t *testing.T) {
	g := NewGovernor(10_000, 4.5, 10)
	if g.MaxTotalLossExceeded(9_001) {
		t.Fatal("loss of 999 is below the total limit")
	}
	if !g.MaxTotalLossExceeded(9_000) {
		t.Fatal("loss of exactly 1000 must trip the total limit")
	}
}

func TestDeriveStopGridEURUSD(t *testing.T) {
	inst := types.Instrument{Symbol: "EURUSD", Point: 0.00001, ContractSize: 100_000, StopsLevel: 0}
	// point value = 0.9 * 100000 * 0.00001 = 0.9 per point
	g, err := DeriveStopGrid(inst, 0.9, 10_000, 1, 10)
	if err != nil {
		t.Fatalf("DeriveStopGrid: %v", err)
	}
	if g.Step != 11 { // 10/0.9 = 11.1 -> 11
		t.Fatalf("step = %d, want 11", g.Step)
	}
	if g.Max != 111 { // 100/0.9 = 111.1 -> 111
		t.Fatalf("max = %d, want 111", g.Max)
	}
	if g.Min != 1 {
		t.Fatalf("min = %d, want 1", g.Min)
	}
}

func TestDeriveStopGridFloorsAtStopsLevel(t *testing.T) {
	inst := types.Instrument{Symbol: "XAUUSD", Point: 0.01, ContractSize: 100, StopsLevel: 300}
	g, err := DeriveStopGrid(inst, 1, 10_000, 1, 10)
	if err != nil {
		t.Fatalf("DeriveStopGrid: %v", err)
	}
	if g.Min != 301 || g.Max != 301 {
		t.Fatalf("expected max raised to min 301, got %+v", g)
	}
	if g.Step != 10 {
		t.Fatalf("step = %d, want 10", g.Step)
	}
}

func TestDeriveStopGridRejectsBadInstrument(t *testing.T) {
	if _, err := DeriveStopGrid(types.Instrument{Symbol: "X"}, 1, 10_000, 1, 10); err == nil {
		t.Fatal("expected error for zero point")
	}
}

func TestCalcPnL(t *testing.T) {
	if got := CalcPnL(0.5, 100_000, -0.0010); got != -50 {
		t.Fatalf("CalcPnL = %v, want -50", got)
	}
}

type fakeAccount struct {
	deals     []types.Deal
	positions []types.Position
	since     time.Time
}

func (f *fakeAccount) Balance(context.Context) (float64, error) { return 0, nil }
func (f *fakeAccount) Positions(context.Context, string) ([]types.Position, error) {
	return f.positions, nil
}
func (f *fakeAccount) DealsSince(_ context.Context, since time.Time) ([]types.Deal, error) {
	f.since = since
	var out []types.Deal
	for _, d := range f.deals {
		if !d.Time.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestDailyGuardStopsOnClosedPlusFloating(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2025, 4, 8, 10, 0, 0, 0, berlin)
	acct := &fakeAccount{
		deals: []types.Deal{
			{Time: now.Add(-20 * time.Hour), Profit: -1_000, Closing: true}, // yesterday
			{Time: now.Add(-2 * time.Hour), Profit: -300, Commission: -5, Closing: true},
			{Time: now.Add(-3 * time.Hour), Profit: 0, Commission: -2}, // opening deal
		},
		positions: []types.Position{{Profit: -150}},
	}
	g := NewDailyGuard(acct, 10_000, 4.5, berlin, true).WithClock(func() time.Time { return now })

	stop, err := g.ShouldStop(context.Background())
	if err != nil {
		t.Fatalf("ShouldStop: %v", err)
	}
	if !stop {
		t.Fatalf("P&L %v should hit the -450 limit", g.LastPnL())
	}
	if g.LastPnL() != -455 {
		t.Fatalf("P&L = %v, want -455", g.LastPnL())
	}
	if want := time.Date(2025, 4, 8, 0, 0, 0, 0, berlin); !acct.since.Equal(want) {
		t.Fatalf("deals queried since %s, want local midnight %s", acct.since, want)
	}
}

func TestDailyGuardDisabled(t *testing.T) {
	acct := &fakeAccount{positions: []types.Position{{Profit: -1e6}}}
	g := NewDailyGuard(acct, 10_000, 4.5, time.UTC, false)
	if stop, _ := g.ShouldStop(context.Background()); stop {
		t.Fatal("guard outside funded mode must never stop")
	}
}

func TestDailyGuardRollsOver(t *testing.T) {
	now := day(7, 23)
	g := NewDailyGuard(&fakeAccount{}, 10_000, 4.5, time.UTC, true).WithClock(func() time.Time { return now })
	if g.UpdateDay() {
		t.Fatal("no rollover expected within the same day")
	}
	now = day(8, 0)
	if !g.UpdateDay() {
		t.Fatal("expected a rollover at midnight")
	}
}
