// Package backtest runs a strategy over a bar series and reports the
// resulting equity curve, trade log, and summary statistics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"backlab/internal/broker"
	"backlab/internal/domain"
	"backlab/internal/params"
	"backlab/internal/series"
	"backlab/internal/strategy"
)

// Config holds the run parameters.
type Config struct {
	Cash       float64
	Commission float64
	Params     params.Map
	Log        *slog.Logger
}

func (c Config) validate() error {
	if c.Cash <= 0 {
		return fmt.Errorf("cash must be positive, got %v", c.Cash)
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return fmt.Errorf("commission must be in [0, 1), got %v", c.Commission)
	}
	return nil
}

// Result is the outcome of one backtest run.
type Result struct {
	Strategy string
	Symbol   string
	Bars     int

	// EquityCurve has Bars+1 samples: sample 0 is the starting cash and
	// sample b+1 is equity at the close of bar b. The final sample reflects
	// the end-of-data force close.
	EquityCurve []float64
	Trades      []domain.Trade
	Rejections  []domain.Rejection
	Stats       Stats
}

// Run executes strat over bars. Input errors, lifecycle violations, and
// lookahead reads abort with an error; order rejections do not — they are
// collected in the result.
func Run(ctx context.Context, strat strategy.Strategy, bars []domain.Bar, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ser, err := series.New(bars)
	if err != nil {
		return nil, err
	}

	sim := broker.New(cfg.Cash, cfg.Commission, cfg.Log)
	sctx := strategy.NewContext(ser, sim, cfg.Params)

	if err := callInit(strat, sctx); err != nil {
		return nil, err
	}

	n := ser.Len()
	for b := 0; b < n; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sim.MatchBar(b, ser.Bar(b))
		sctx.Advance(b)
		if err := callNext(strat, sctx, b); err != nil {
			return nil, err
		}
		sim.SampleEquity(ser.Bar(b).Close)
	}

	// End of data: flatten at the last close and rewrite the final sample.
	sim.CloseAll(n-1, ser.Bar(n-1))

	res := &Result{
		Strategy:    strat.Name(),
		Symbol:      ser.Symbol(),
		Bars:        n,
		EquityCurve: sim.EquityCurve(),
		Trades:      sim.Trades(),
		Rejections:  sim.Rejections(),
	}
	res.Stats = ComputeStats(res.EquityCurve, res.Trades, n)
	return res, nil
}

// callInit invokes strat.Init, converting lookahead, range, and lifecycle
// panics from user code into run-aborting errors, the same shield callNext
// applies during the bar loop. Reading a view or indicator handle before the
// first bar is processed lands here too. Other panics propagate.
func callInit(strat strategy.Strategy, sctx *strategy.Context) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := strategyPanic(r); ok {
			err = fmt.Errorf("strategy %s init: %w", strat.Name(), e)
			return
		}
		panic(r)
	}()
	if err := strat.Init(sctx); err != nil {
		return fmt.Errorf("strategy %s init: %w", strat.Name(), err)
	}
	return nil
}

// callNext invokes strat.Next with the same panic shield as callInit.
func callNext(strat strategy.Strategy, sctx *strategy.Context, b int) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := strategyPanic(r); ok {
			err = fmt.Errorf("strategy %s at bar %d: %w", strat.Name(), b, e)
			return
		}
		panic(r)
	}()
	strat.Next(sctx)
	return nil
}

// strategyPanic matches a recovered panic value against the typed errors
// strategy code can raise through views and context methods.
func strategyPanic(r any) (error, bool) {
	var la *series.LookaheadError
	var re *series.RangeError
	var le *strategy.LifecycleError
	switch {
	case asPanic(r, &la):
		return la, true
	case asPanic(r, &re):
		return re, true
	case asPanic(r, &le):
		return le, true
	}
	return nil, false
}

// asPanic matches a recovered panic value against a typed error target.
func asPanic(r any, target any) bool {
	e, ok := r.(error)
	return ok && errors.As(e, target)
}
