package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evdnx/trendsweep/types"
)

var eurusd = Instruments{"EURUSD": {Point: 0.00001, ContractSize: 100_000}}

func TestReadCSV(t *testing.T) {
	in := `time,open,high,low,close,volume
2025-04-07 07:00:00,1.1,1.2,1.0,1.15,100
2025-04-07 07:05:00,1.15,1.25,1.1,1.2,120
`
	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 || bars[1].Close != 1.2 || bars[1].Volume != 120 {
		t.Fatalf("unexpected bars %+v", bars)
	}
	if want := time.Date(2025, 4, 7, 7, 5, 0, 0, time.UTC); !bars[1].Time.Equal(want) {
		t.Fatalf("time = %s, want %s", bars[1].Time, want)
	}
}

func TestReadCSVUnixAndNoHeader(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader("1743980400,1,2,0.5,1.5,0\n1743980700,1,2,0.5,1.6,0\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 || bars[0].Time.Unix() != 1743980400 {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestReadCSVRejectsUnordered(t *testing.T) {
	in := "2025-04-07 07:05:00,1,1,1,1,0\n2025-04-07 07:00:00,1,1,1,1,0\n"
	if _, err := ReadCSV(strings.NewReader(in)); !errors.Is(err, types.ErrUnorderedSeries) {
		t.Fatalf("expected ErrUnorderedSeries, got %v", err)
	}
}

func TestReadCSVBadNumber(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("2025-04-07 07:05:00,x,1,1,1,0\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCSVSourceRangeAndMissing(t *testing.T) {
	dir := t.TempDir()
	data := "time,open,high,low,close,volume\n" +
		"2025-04-06 23:55:00,1,1,1,1,0\n" +
		"2025-04-07 00:00:00,1,1,1,2,0\n" +
		"2025-04-08 00:00:00,1,1,1,3,0\n" +
		"2025-04-08 00:05:00,1,1,1,4,0\n"
	if err := os.WriteFile(filepath.Join(dir, "EURUSD_M5.csv"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewCSVSource(dir, eurusd)
	from := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC)

	bars, err := src.Bars(context.Background(), "EURUSD", "M5", from, to)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 2 || bars[1].Close != 3 {
		t.Fatalf("range should be inclusive on both ends, got %+v", bars)
	}

	if _, err := src.Bars(context.Background(), "EURUSD", "H1", from, to); !errors.Is(err, ErrNoData) {
		t.Fatalf("missing file should be ErrNoData, got %v", err)
	}
	if _, err := src.Bars(context.Background(), "EURUSD", "M5", from.AddDate(1, 0, 0), to.AddDate(1, 0, 0)); !errors.Is(err, ErrNoData) {
		t.Fatalf("empty range should be ErrNoData, got %v", err)
	}
}

func TestInstrumentLookup(t *testing.T) {
	inst, err := eurusd.Lookup("EURUSD")
	if err != nil || inst.Symbol != "EURUSD" {
		t.Fatalf("Lookup: %+v %v", inst, err)
	}
	if _, err := eurusd.Lookup("GBPUSD"); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("expected ErrUnknownInstrument, got %v", err)
	}
	bad := Instruments{"X": {Point: 0, ContractSize: 1}}
	if _, err := bad.Lookup("X"); !errors.Is(err, types.ErrInvalidInstrument) {
		t.Fatalf("expected ErrInvalidInstrument, got %v", err)
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(eurusd)
	t0 := time.Date(2025, 4, 7, 7, 0, 0, 0, time.UTC)
	bars := []types.Bar{{Time: t0, Close: 1}, {Time: t0.Add(time.Minute), Close: 2}}
	if err := src.Put("EURUSD", "M1", bars); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := src.Bars(context.Background(), "EURUSD", "M1", time.Time{}, time.Time{})
	if err != nil || len(got) != 2 {
		t.Fatalf("Bars: %v %v", got, err)
	}
	if err := src.Put("EURUSD", "M5", []types.Bar{bars[1], bars[0]}); err == nil {
		t.Fatal("Put must reject unordered series")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Bars(ctx, "EURUSD", "M1", time.Time{}, time.Time{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInterval(t *testing.T) {
	cases := map[string]string{"M5": "5m", "m15": "15m", "H1": "1h", "D1": "1d", "5m": "5m", "tick": "tick"}
	for in, want := range cases {
		if got := Interval(in); got != want {
			t.Fatalf("Interval(%q) = %q, want %q", in, got, want)
		}
	}
}
