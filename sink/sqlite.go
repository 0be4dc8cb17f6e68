package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evdnx/trendsweep/backtest"
	"github.com/evdnx/trendsweep/types"
)

// SQLite keeps a history of sweep runs, per-pair winners and the trade
// journal of each run's overall winner.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sweep_runs (
			run_id         TEXT PRIMARY KEY,
			created_at     INTEGER NOT NULL,
			symbol         TEXT,
			timeframe      TEXT,
			best_profit    REAL,
			best_params    TEXT,
			cells_tested   INTEGER,
			cells_rejected INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS pair_results (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			timeframe      TEXT NOT NULL,
			best_profit    REAL,
			best_params    TEXT,
			cells_tested   INTEGER,
			cells_rejected INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pair_run ON pair_results(run_id)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			side       TEXT,
			entry_time INTEGER,
			exit_time  INTEGER,
			entry      REAL,
			exit       REAL,
			pnl        REAL,
			reason     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func nullProfit(p Profit) sql.NullFloat64 {
	return sql.NullFloat64{Float64: float64(p), Valid: p.Valid()}
}

// Save implements Sink.
func (s *SQLite) Save(ctx context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(sum.BestParams)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO sweep_runs
		(run_id, created_at, symbol, timeframe, best_profit, best_params, cells_tested, cells_rejected)
		VALUES (?,?,?,?,?,?,?,?)`,
		sum.RunID, sum.CreatedAt.Unix(), sum.Symbol, sum.Timeframe,
		nullProfit(sum.BestProfit), string(params), sum.CellsTested, sum.CellsRejected,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, r := range sum.Pairs {
		p, err := json.Marshal(r.BestParams)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO pair_results
			(run_id, symbol, timeframe, best_profit, best_params, cells_tested, cells_rejected)
			VALUES (?,?,?,?,?,?,?)`,
			sum.RunID, r.Symbol, r.Timeframe, nullProfit(r.BestProfit), string(p), r.CellsTested, r.CellsRejected,
		); err != nil {
			return fmt.Errorf("insert pair %s %s: %w", r.Symbol, r.Timeframe, err)
		}
	}
	return tx.Commit()
}

// SaveTrades implements Sink.
func (s *SQLite) SaveTrades(ctx context.Context, runID string, trades []backtest.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, t := range trades {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trades
			(run_id, side, entry_time, exit_time, entry, exit, pnl, reason)
			VALUES (?,?,?,?,?,?,?,?)`,
			runID, string(t.Side), t.EntryTime.Unix(), t.ExitTime.Unix(), t.Entry, t.Exit, t.PnL, t.Reason,
		); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return tx.Commit()
}

// PairRecords returns the per-pair winners stored for runID.
func (s *SQLite) PairRecords(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.created_at, p.symbol, p.timeframe, p.best_profit, p.best_params, p.cells_tested, p.cells_rejected
		FROM pair_results p JOIN sweep_runs r ON r.run_id = p.run_id
		WHERE p.run_id = ? ORDER BY p.id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{RunID: runID}
		var (
			created int64
			profit  sql.NullFloat64
			params  string
		)
		if err := rows.Scan(&created, &rec.Symbol, &rec.Timeframe, &profit, &params, &rec.CellsTested, &rec.CellsRejected); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		rec.BestProfit = Profit(backtest.Sentinel)
		if profit.Valid {
			rec.BestProfit = Profit(profit.Float64)
		}
		var p types.ParameterSet
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		rec.BestParams = p
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Trades returns the journal stored for runID.
func (s *SQLite) Trades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT side, entry_time, exit_time, entry, exit, pnl, reason
		FROM trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.Trade
	for rows.Next() {
		var (
			t           backtest.Trade
			side        string
			entry, exit int64
		)
		if err := rows.Scan(&side, &entry, &exit, &t.Entry, &t.Exit, &t.PnL, &t.Reason); err != nil {
			return nil, err
		}
		t.Side = types.Side(side)
		t.EntryTime = time.Unix(entry, 0).UTC()
		t.ExitTime = time.Unix(exit, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLite) Close() error { return s.db.Close() }
