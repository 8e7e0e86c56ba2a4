// Package backlab is the public embedding surface: it re-exports the types
// needed to write a strategy and run a backtest programmatically, without
// reaching into internal packages.
package backlab

import (
	"context"

	"backlab/internal/backtest"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/params"
	"backlab/internal/store"
	"backlab/internal/strategy"
	"backlab/internal/strategy/builtins"
)

// Strategy authoring surface.
type (
	Strategy  = strategy.Strategy
	Context   = strategy.Context
	OrderSpec = strategy.OrderSpec
	Handle    = indicator.Handle
	Params    = params.Map
)

// Run results.
type (
	Bar       = domain.Bar
	Trade     = domain.Trade
	Rejection = domain.Rejection
	Result    = backtest.Result
	Stats     = backtest.Stats
)

// Config holds the run parameters for Run and RunCSV.
type Config struct {
	Cash       float64
	Commission float64
	Params     Params
}

// Run executes strat over bars.
func Run(ctx context.Context, strat Strategy, bars []Bar, cfg Config) (*Result, error) {
	return backtest.Run(ctx, strat, bars, backtest.Config{
		Cash:       cfg.Cash,
		Commission: cfg.Commission,
		Params:     cfg.Params,
	})
}

// RunCSV loads bars for symbol from a CSV file and executes strat over them.
func RunCSV(ctx context.Context, strat Strategy, csvPath, symbol string, cfg Config) (*Result, error) {
	bars, err := store.ReadCSVBars(csvPath, symbol)
	if err != nil {
		return nil, err
	}
	return Run(ctx, strat, bars, cfg)
}

// Builtin returns a fresh instance of a built-in strategy by name.
func Builtin(name string) (Strategy, bool) {
	return builtins.NewRegistry().New(name)
}

// Builtins lists the built-in strategy names.
func Builtins() []string {
	return builtins.NewRegistry().List()
}
