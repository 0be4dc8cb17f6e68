package feed

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/types"
)

// ClickHouseSource reads bars from an OHLCV table keyed by
// (symbol, interval, open_time_ms).
type ClickHouseSource struct {
	conn        driver.Conn
	database    string
	table       string
	instruments Instruments
}

// NewClickHouseSource connects and pings the server.
func NewClickHouseSource(ctx context.Context, cfg config.ClickHouseConfig, instruments Instruments) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &ClickHouseSource{conn: conn, database: cfg.Database, table: cfg.Table, instruments: instruments}, nil
}

// Bars implements Source.
func (s *ClickHouseSource) Bars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]types.Bar, error) {
	lo, hi := uint64(0), uint64(math.MaxInt64)
	if !from.IsZero() {
		lo = uint64(from.UnixMilli())
	}
	if !to.IsZero() {
		hi = uint64(to.UnixMilli())
	}
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms <= ?
		ORDER BY open_time_ms`, s.database, s.table)

	rows, err := s.conn.Query(ctx, query, symbol, Interval(timeframe), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", symbol, timeframe, err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var (
			ms uint64
			b  types.Bar
		)
		if err := rows.Scan(&ms, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan %s %s: %w", symbol, timeframe, err)
		}
		b.Time = time.UnixMilli(int64(ms)).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	if err := types.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, err)
	}
	return bars, nil
}

// Instrument implements Source. Tick economics come from configuration;
// the bar store holds prices only.
func (s *ClickHouseSource) Instrument(_ context.Context, symbol string) (types.Instrument, error) {
	return s.instruments.Lookup(symbol)
}

// Close releases the connection.
func (s *ClickHouseSource) Close() error { return s.conn.Close() }
