package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/trendsweep/types"
)

// CSVSource reads one file per pair, <dir>/<symbol>_<timeframe>.csv, with
// columns time,open,high,low,close,volume. A header row is optional.
type CSVSource struct {
	dir         string
	instruments Instruments
}

// NewCSVSource reads files below dir.
func NewCSVSource(dir string, instruments Instruments) *CSVSource {
	return &CSVSource{dir: dir, instruments: instruments}
}

// Path returns the file a pair is read from.
func (s *CSVSource) Path(symbol, timeframe string) string {
	return filepath.Join(s.dir, symbol+"_"+timeframe+".csv")
}

// Bars implements Source.
func (s *CSVSource) Bars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(symbol, timeframe)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s missing", ErrNoData, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bars := InRange(all, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	return bars, nil
}

// Instrument implements Source.
func (s *CSVSource) Instrument(_ context.Context, symbol string) (types.Instrument, error) {
	return s.instruments.Lookup(symbol)
}

// ReadCSV parses an OHLCV stream and checks the ordering invariant.
func ReadCSV(r io.Reader) ([]types.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []types.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
			continue
		}
		b, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	if err := types.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseRecord(rec []string) (types.Bar, error) {
	if len(rec) < 5 {
		return types.Bar{}, fmt.Errorf("want at least 5 columns, got %d", len(rec))
	}
	ts, err := parseTime(rec[0])
	if err != nil {
		return types.Bar{}, err
	}
	var v [5]float64
	for i := 1; i < len(rec) && i <= 5; i++ {
		v[i-1], err = strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return types.Bar{}, fmt.Errorf("column %d: %w", i+1, err)
		}
	}
	return types.Bar{Time: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

var timeLayouts = []string{time.RFC3339, time.DateTime, "2006.01.02 15:04", "2006-01-02 15:04"}

// parseTime accepts unix seconds or one of timeLayouts. Zoned values are
// converted to UTC wall clock.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
