package builtins

import (
	"math"

	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversion)(nil)

// RSIReversion is a long-only mean-reversion strategy on Wilder's RSI. It
// buys when RSI drops below the oversold level and exits when RSI recovers
// past the exit level. Entries carry a protective stop below the entry price.
// Parameters: period (14), oversold (30), exit (55), stop_pct (0.02),
// size (1).
type RSIReversion struct {
	rsi      *indicator.Handle
	oversold float64
	exit     float64
	stopPct  float64
	size     int
}

// NewRSIReversion creates an RSIReversion strategy.
func NewRSIReversion() *RSIReversion {
	return &RSIReversion{}
}

// Name returns "rsi_reversion".
func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

// Init registers the RSI indicator over the close series.
func (s *RSIReversion) Init(ctx *strategy.Context) error {
	period := ctx.ParamInt("period", 14)
	s.oversold = ctx.ParamFloat("oversold", 30)
	s.exit = ctx.ParamFloat("exit", 55)
	s.stopPct = ctx.ParamFloat("stop_pct", 0.02)
	s.size = ctx.ParamInt("size", 1)

	var err error
	s.rsi, err = ctx.I("rsi", indicator.RSI(period), ctx.Closes())
	return err
}

// Next enters oversold dips and exits on recovery.
func (s *RSIReversion) Next(ctx *strategy.Context) {
	r := s.rsi.At(-1)
	if math.IsNaN(r) {
		return
	}

	pos := ctx.Position()
	switch {
	case pos.Size == 0 && r < s.oversold:
		close := ctx.Data().Close.Last()
		ctx.Buy(strategy.OrderSpec{
			Size: s.size,
			SL:   close * (1 - s.stopPct),
			Tag:  "rsi_reversion",
		})
	case pos.IsLong() && r > s.exit:
		ctx.ClosePosition()
	}
}
