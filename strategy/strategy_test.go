package strategy

import (
	"math"
	"testing"

	"github.com/evdnx/trendsweep/types"
)

func band() types.ParameterSet {
	return types.ParameterSet{
		SuperTrendPeriod:     10,
		SuperTrendMultiplier: 3,
		ADXPeriod:            14,
		ADXThreshold:         25,
		RSIPeriod:            14,
		RSIOversold:          30,
		RSIOverbought:        70,
	}
}

func TestEntryNeedsStableSignal(t *testing.T) {
	p := band()
	if side, ok := Entry(types.SignalBuy, types.SignalBuy, 30, 50, p); !ok || side != types.Buy {
		t.Fatalf("stable buy should enter long, got %v %v", side, ok)
	}
	if side, ok := Entry(types.SignalSell, types.SignalSell, 30, 50, p); !ok || side != types.Sell {
		t.Fatalf("stable sell should enter short, got %v %v", side, ok)
	}
	if _, ok := Entry(types.SignalSell, types.SignalBuy, 30, 50, p); ok {
		t.Fatal("a single-bar flip must not enter")
	}
	if _, ok := Entry(types.SignalUndefined, types.SignalUndefined, 30, 50, p); ok {
		t.Fatal("undefined signal must not enter")
	}
}

func TestEntryFilters(t *testing.T) {
	p := band()
	if _, ok := Entry(types.SignalBuy, types.SignalBuy, 24.99, 50, p); ok {
		t.Fatal("strength below threshold must block")
	}
	if _, ok := Entry(types.SignalBuy, types.SignalBuy, 25, 30, p); !ok {
		t.Fatal("threshold and band edges are inclusive")
	}
	if _, ok := Entry(types.SignalBuy, types.SignalBuy, 25, 70.01, p); ok {
		t.Fatal("momentum above the band must block")
	}
	if _, ok := Entry(types.SignalBuy, types.SignalBuy, math.NaN(), 50, p); ok {
		t.Fatal("undefined strength must block")
	}
}

func TestInitialStop(t *testing.T) {
	if got := InitialStop(types.Buy, 100, 20, 0.5); got != 90 {
		t.Fatalf("long stop = %v, want 90", got)
	}
	if got := InitialStop(types.Sell, 100, 20, 0.5); got != 110 {
		t.Fatalf("short stop = %v, want 110", got)
	}
}

func TestTrailLong(t *testing.T) {
	tr := Trailing{Trigger: 10, Distance: 5}
	stop, exit := tr.Trail(types.Buy, 100, 80, 109, 1)
	if stop != 80 || exit {
		t.Fatalf("below trigger nothing moves, got %v %v", stop, exit)
	}
	stop, exit = tr.Trail(types.Buy, 100, 80, 120, 1)
	if stop != 115 || exit {
		t.Fatalf("armed trail should lift the stop to 115, got %v %v", stop, exit)
	}
	stop, exit = tr.Trail(types.Buy, 100, 115, 112, 1)
	if stop != 115 || !exit {
		t.Fatalf("stop must not loosen and price under it exits, got %v %v", stop, exit)
	}
}

func TestTrailShort(t *testing.T) {
	tr := Trailing{Trigger: 10, Distance: 5}
	stop, exit := tr.Trail(types.Sell, 100, 120, 85, 1)
	if stop != 90 || exit {
		t.Fatalf("armed short trail should lower the stop to 90, got %v %v", stop, exit)
	}
	_, exit = tr.Trail(types.Sell, 100, 90, 90, 1)
	if !exit {
		t.Fatal("price touching a short stop exits")
	}
}

func TestStable(t *testing.T) {
	if Stable(types.SignalBuy, types.SignalSell) != types.SignalHold {
		t.Fatal("disagreeing bars should hold")
	}
	if Stable(types.SignalSell, types.SignalSell) != types.SignalSell {
		t.Fatal("agreeing bars pass through")
	}
}

func TestTighter(t *testing.T) {
	if !Tighter(types.Buy, 1.1, 0) {
		t.Fatal("any stop beats no stop")
	}
	if Tighter(types.Buy, 1.0, 1.1) || !Tighter(types.Sell, 1.0, 1.1) {
		t.Fatal("long stops rise and short stops fall")
	}
}
