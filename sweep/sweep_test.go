package sweep

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/evdnx/trendsweep/backtest"
	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/feed"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/testutils"
	"github.com/evdnx/trendsweep/types"
)

var eurusd = types.Instrument{Symbol: "EURUSD", Point: 0.00001, ContractSize: 100_000, Digits: 5}

func smallConfig() *config.Config {
	c := &config.Config{}
	c.Grid = config.GridConfig{
		SuperTrendPeriod:     config.IntRange{Min: 5, Max: 7, Step: 1},
		SuperTrendMultiplier: config.FloatRange{Min: 2, Max: 3, Step: 1},
		ADXPeriod:            config.IntRange{Min: 10, Max: 10, Step: 1},
		ADXThreshold:         config.FloatRange{Min: 10, Max: 20, Step: 10},
		RSIPeriod:            config.IntRange{Min: 10, Max: 10, Step: 1},
		RSIOversold:          config.FloatRange{Min: 20, Max: 30, Step: 10},
		RSIOverbought:        config.FloatRange{Min: 70, Max: 80, Step: 10},
	}
	c.Backtest.Workers = 4
	c.Trading.Sessions = []string{}
	c.ApplyDefaults()
	return c
}

func waveBars(n int) []types.Bar {
	t0 := time.Date(2025, 4, 7, 7, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 1.10 + 0.01*math.Sin(float64(i)/15) + 0.002*math.Sin(float64(i)/3)
		bars[i] = types.Bar{
			Time:  t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:  c,
			High:  c + 0.0005,
			Low:   c - 0.0005,
			Close: c,
		}
	}
	return bars
}

func newRunner(t *testing.T, c *config.Config, p indicator.Provider) (*Runner, *testutils.MockLogger) {
	t.Helper()
	bc, err := backtest.ConfigFrom(c)
	if err != nil {
		t.Fatalf("ConfigFrom: %v", err)
	}
	log := testutils.NewMockLogger()
	return NewRunner(c, p, backtest.NewSimulator(bc), log), log
}

func TestGridDefaultsSizeAndOrder(t *testing.T) {
	c := &config.Config{}
	c.ApplyDefaults()
	g := NewGrid(c.Grid)
	if g.Size() != 10*4*2*3*2*3*3 {
		t.Fatalf("default grid size = %d", g.Size())
	}
	var cells []Cell
	err := g.Each(context.Background(), func(c Cell) error {
		cells = append(cells, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	if len(cells) != g.Size() {
		t.Fatalf("Each visited %d cells, Size says %d", len(cells), g.Size())
	}
	first, second := cells[0].Params, cells[1].Params
	if first.SuperTrendPeriod != 5 || first.SuperTrendMultiplier != 2 || first.RSIOverbought != 60 {
		t.Fatalf("unexpected first cell %+v", first)
	}
	if second.RSIOverbought != 65 || second.RSIOversold != 25 {
		t.Fatalf("innermost axis should move first, got %+v", second)
	}
	for i, c := range cells {
		if c.Index != i {
			t.Fatalf("cell %d carries index %d", i, c.Index)
		}
	}
}

func TestFloatAxisHasNoDrift(t *testing.T) {
	got := floats(config.FloatRange{Min: 0.1, Max: 0.5, Step: 0.1})
	if len(got) != 5 {
		t.Fatalf("expected 5 values, got %v", got)
	}
}

func TestDeriveStopsAxes(t *testing.T) {
	c := smallConfig()
	c.Grid = config.GridConfig{
		SuperTrendPeriod:     config.IntRange{Min: 10, Max: 10, Step: 1},
		SuperTrendMultiplier: config.FloatRange{Min: 3, Max: 3, Step: 1},
		ADXPeriod:            config.IntRange{Min: 14, Max: 14, Step: 1},
		ADXThreshold:         config.FloatRange{Min: 25, Max: 25, Step: 1},
		RSIPeriod:            config.IntRange{Min: 14, Max: 14, Step: 1},
		RSIOversold:          config.FloatRange{Min: 30, Max: 30, Step: 1},
		RSIOverbought:        config.FloatRange{Min: 70, Max: 70, Step: 1},
		DeriveStops:          true,
		StopStepMoney:        10,
		RiskPerTradePercent:  1,
	}
	g, err := NewGrid(c.Grid).DeriveStops(eurusd, 0.9, 10_000)
	if err != nil {
		t.Fatalf("DeriveStops: %v", err)
	}
	// stop 1..111 step 11 (11 values), triggers 11..110 (10), distances 1..k
	if g.Size() != 11*55 {
		t.Fatalf("size = %d, want %d", g.Size(), 11*55)
	}
	n := 0
	err = g.Each(context.Background(), func(c Cell) error {
		p := c.Params
		if p.TrailingDistancePoints > p.TrailingTriggerPoints || p.StopLossPoints < 1 || p.StopLossPoints > 111 {
			t.Fatalf("cell out of range %+v", p)
		}
		n++
		return nil
	})
	if err != nil || n != g.Size() {
		t.Fatalf("visited %d of %d cells (err %v)", n, g.Size(), err)
	}
}

func TestEachStopsOnCancel(t *testing.T) {
	g := NewGrid(smallConfig().Grid)
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := g.Each(ctx, func(Cell) error {
		n++
		if n == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) || n != 3 {
		t.Fatalf("expected cancel after 3 cells, got n=%d err=%v", n, err)
	}
}

func TestBestIsOrderIndependent(t *testing.T) {
	profits := []float64{5, math.Inf(-1), 12, 3, 12, -4, 12, 0}
	want := Best{}
	for i, p := range profits {
		want.Offer(i, backtest.Result{Profit: p})
	}
	if want.Index != 2 {
		t.Fatalf("tie on 12 should keep index 2, got %d", want.Index)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		order := rng.Perm(len(profits))
		var b Best
		for _, i := range order {
			b.Offer(i, backtest.Result{Profit: profits[i]})
		}
		if b.Index != want.Index || b.Result.Profit != want.Result.Profit {
			t.Fatalf("order %v picked %d, want %d", order, b.Index, want.Index)
		}
	}
}

func TestBestAllSentinel(t *testing.T) {
	var b Best
	for _, i := range []int{4, 1, 3} {
		b.Offer(i, backtest.Reject(types.ParameterSet{}, backtest.ReasonMaxTotalLoss))
	}
	if !b.Found() || b.Index != 1 || !backtest.IsSentinel(b.Result.Profit) {
		t.Fatalf("degenerate sweep should still pick index 1, got %+v", b)
	}
}

func TestRunPairMatchesSerialSearch(t *testing.T) {
	c := smallConfig()
	r, log := newRunner(t, c, indicator.Standard{})
	bars := waveBars(600)

	pr, err := r.RunPair(context.Background(), bars, eurusd, "EURUSD", "M5")
	if err != nil {
		t.Fatalf("RunPair: %v", err)
	}
	if pr.Tested != r.Grid().Size() {
		t.Fatalf("tested %d, grid has %d", pr.Tested, r.Grid().Size())
	}

	var serial Best
	_ = r.Grid().Each(context.Background(), func(cell Cell) error {
		f, err := indicator.Standard{}.Compute(bars, cell.Params)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		serial.Offer(cell.Index, r.sim.Run(f, eurusd, cell.Params))
		return nil
	})
	if pr.BestIndex != serial.Index || pr.Best.Profit != serial.Result.Profit {
		t.Fatalf("parallel best %d (%v) differs from serial %d (%v)",
			pr.BestIndex, pr.Best.Profit, serial.Index, serial.Result.Profit)
	}
	if !backtest.IsSentinel(pr.Best.Profit) {
		sum := 0.0
		for _, tr := range pr.Best.Journal {
			sum += tr.PnL
		}
		if math.Abs(sum-pr.Best.Profit) > 1e-6 {
			t.Fatalf("journal P&L %v does not add up to profit %v", sum, pr.Best.Profit)
		}
	}
	if log.Count("replay_mismatch") != 0 {
		t.Fatal("replay must reproduce the searched profit")
	}
	if log.Count("pair_done") != 1 {
		t.Fatal("expected a pair_done log entry")
	}
}

type panicProvider struct{}

func (panicProvider) Compute([]types.Bar, types.ParameterSet) (*indicator.Frame, error) {
	panic("boom")
}

func TestRunPairIsolatesPanics(t *testing.T) {
	c := smallConfig()
	r, log := newRunner(t, c, panicProvider{})

	pr, err := r.RunPair(context.Background(), waveBars(50), eurusd, "EURUSD", "M5")
	if err != nil {
		t.Fatalf("RunPair: %v", err)
	}
	if pr.Rejected != pr.Tested || pr.Tested != r.Grid().Size() {
		t.Fatalf("every cell should be rejected, got %d of %d", pr.Rejected, pr.Tested)
	}
	if pr.BestIndex != 0 || !backtest.IsSentinel(pr.Best.Profit) {
		t.Fatalf("degenerate pair should report cell 0 with the sentinel, got %+v", pr)
	}
	if log.Count("cell_panic") != pr.Tested {
		t.Fatalf("expected one cell_panic per cell, got %d", log.Count("cell_panic"))
	}
}

func TestRunSkipsBrokenPairs(t *testing.T) {
	c := smallConfig()
	r, log := newRunner(t, c, indicator.Standard{})

	src := feed.NewMemorySource(feed.Instruments{"EURUSD": eurusd})
	if err := src.Put("EURUSD", "M5", waveBars(300)); err != nil {
		t.Fatal(err)
	}
	pairs := []Pair{{"EURUSD", "M5"}, {"EURUSD", "H1"}, {"GBPUSD", "M5"}}

	rep, err := r.Run(context.Background(), src, pairs, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Pairs) != 1 || len(rep.Skipped) != 2 {
		t.Fatalf("expected 1 searched and 2 skipped pairs, got %d / %d", len(rep.Pairs), len(rep.Skipped))
	}
	if !rep.HasBest || rep.Best.Symbol != "EURUSD" || rep.Best.Timeframe != "M5" {
		t.Fatalf("global best should be the only searched pair, got %+v", rep.Best)
	}
	if log.Count("pair_skipped") != 2 {
		t.Fatalf("expected two pair_skipped warnings, got %d", log.Count("pair_skipped"))
	}
	if rep.Tested() != r.Grid().Size() {
		t.Fatalf("tested %d, want %d", rep.Tested(), r.Grid().Size())
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	r, _ := newRunner(t, smallConfig(), indicator.Standard{})
	src := feed.NewMemorySource(feed.Instruments{"EURUSD": eurusd})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := r.Run(ctx, src, Pairs([]string{"EURUSD"}, []string{"M5", "M15"}), time.Time{}, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rep.Pairs) != 0 {
		t.Fatalf("no pair should run after cancellation, got %d", len(rep.Pairs))
	}
}

func TestPairs(t *testing.T) {
	got := Pairs([]string{"A", "B"}, []string{"M5", "H1"})
	if len(got) != 4 || got[1] != (Pair{"A", "H1"}) || got[2] != (Pair{"B", "M5"}) {
		t.Fatalf("unexpected pairs %v", got)
	}
}
