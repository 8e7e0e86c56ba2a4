package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	created_at       TEXT    NOT NULL,
	strategy         TEXT    NOT NULL,
	symbol           TEXT    NOT NULL,
	bars             INTEGER NOT NULL,
	cash             REAL    NOT NULL,
	commission       REAL    NOT NULL,
	params           TEXT    NOT NULL,
	final_equity     REAL    NOT NULL,
	total_return_pct REAL    NOT NULL,
	sharpe           REAL    NOT NULL,
	max_drawdown_pct REAL    NOT NULL,
	trade_count      INTEGER NOT NULL,
	win_rate_pct     REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
	run_id      TEXT    NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	entry_bar   INTEGER NOT NULL,
	exit_bar    INTEGER NOT NULL,
	side        TEXT    NOT NULL,
	size        INTEGER NOT NULL,
	entry_price REAL    NOT NULL,
	exit_price  REAL    NOT NULL,
	pnl         REAL    NOT NULL,
	commission  REAL    NOT NULL,
	tag         TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_rejections (
	run_id   TEXT    NOT NULL REFERENCES runs(id),
	seq      INTEGER NOT NULL,
	bar      INTEGER NOT NULL,
	order_id TEXT    NOT NULL,
	reason   TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// run tables if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run and its trade and rejection logs in one transaction.
// When run.ID is blank a fresh UUID is assigned; a zero CreatedAt is set to
// the current time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord, trades []domain.Trade, rejections []domain.Rejection) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, strategy, symbol, bars, cash, commission,
			params, final_equity, total_return_pct, sharpe, max_drawdown_pct,
			trade_count, win_rate_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339), run.Strategy, run.Symbol,
		run.Bars, run.Cash, run.Commission, run.Params, run.FinalEquity,
		run.TotalReturnPct, run.Sharpe, run.MaxDrawdownPct, run.TradeCount,
		run.WinRatePct)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, t := range trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_trades (run_id, seq, entry_bar, exit_bar, side, size,
				entry_price, exit_price, pnl, commission, tag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, t.EntryBar, t.ExitBar, string(t.Side), t.Size,
			t.EntryPrice, t.ExitPrice, t.PnL, t.Commission, t.Tag)
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	for i, r := range rejections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_rejections (run_id, seq, bar, order_id, reason)
			VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, r.Bar, r.OrderID, r.Reason)
		if err != nil {
			return fmt.Errorf("insert rejection %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run and its logs by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, []domain.Trade, []domain.Rejection, error) {
	var run RunRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, strategy, symbol, bars, cash, commission, params,
			final_equity, total_return_pct, sharpe, max_drawdown_pct,
			trade_count, win_rate_pct
		FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &createdAt, &run.Strategy, &run.Symbol, &run.Bars, &run.Cash,
		&run.Commission, &run.Params, &run.FinalEquity, &run.TotalReturnPct,
		&run.Sharpe, &run.MaxDrawdownPct, &run.TradeCount, &run.WinRatePct)
	if err != nil {
		return nil, nil, nil, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, nil, nil, fmt.Errorf("parse created_at: %w", err)
	}

	trades, err := s.runTrades(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	rejections, err := s.runRejections(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return &run, trades, rejections, nil
}

func (s *SQLiteStore) runTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_bar, exit_bar, side, size, entry_price, exit_price, pnl,
			commission, tag
		FROM run_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.EntryBar, &t.ExitBar, &side, &t.Size,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.Commission, &t.Tag); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) runRejections(ctx context.Context, runID string) ([]domain.Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bar, order_id, reason
		FROM run_rejections WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []domain.Rejection
	for rows.Next() {
		var r domain.Rejection
		if err := rows.Scan(&r.Bar, &r.OrderID, &r.Reason); err != nil {
			return nil, err
		}
		rejections = append(rejections, r)
	}
	return rejections, rows.Err()
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, strategy, symbol, bars, cash, commission, params,
			final_equity, total_return_pct, sharpe, max_drawdown_pct,
			trade_count, win_rate_pct
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.Strategy, &run.Symbol,
			&run.Bars, &run.Cash, &run.Commission, &run.Params, &run.FinalEquity,
			&run.TotalReturnPct, &run.Sharpe, &run.MaxDrawdownPct,
			&run.TradeCount, &run.WinRatePct); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
