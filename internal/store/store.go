// Package store defines storage interfaces for bar data and backtest run
// history, with CSV, Parquet, and SQLite implementations.
package store

import (
	"context"
	"time"

	"backlab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is one persisted backtest run: the inputs that produced it and a
// summary of the outcome. The full trade and rejection logs live in their own
// tables keyed by the run ID.
type RunRecord struct {
	ID             string
	CreatedAt      time.Time
	Strategy       string
	Symbol         string
	Bars           int
	Cash           float64
	Commission     float64
	Params         string // JSON-encoded strategy parameters
	FinalEquity    float64
	TotalReturnPct float64
	Sharpe         float64
	MaxDrawdownPct float64
	TradeCount     int
	WinRatePct     float64
}

// RunStore persists backtest run history.
type RunStore interface {
	// SaveRun inserts a run together with its trade and rejection logs.
	// A blank run ID is assigned before insert.
	SaveRun(ctx context.Context, run *RunRecord, trades []domain.Trade, rejections []domain.Rejection) error

	// GetRun retrieves a run and its logs by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, []domain.Trade, []domain.Rejection, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
