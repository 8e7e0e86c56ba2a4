// Package builtins provides built-in strategy implementations that ship with
// backlab.
package builtins

import (
	"math"

	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a moving average crossover strategy. It enters long when the
// fast SMA crosses above the slow SMA and reverses to short on the opposite
// cross. Parameters: fast (default 10), slow (default 30), size (default 1).
type SMACross struct {
	fast *indicator.Handle
	slow *indicator.Handle
	size int
}

// NewSMACross creates an SMACross strategy; periods and size arrive through
// the Context params at Init time.
func NewSMACross() *SMACross {
	return &SMACross{}
}

// Name returns "sma_cross".
func (s *SMACross) Name() string {
	return "sma_cross"
}

// Init registers the fast and slow SMA indicators over the close series.
func (s *SMACross) Init(ctx *strategy.Context) error {
	fast := ctx.ParamInt("fast", 10)
	slow := ctx.ParamInt("slow", 30)
	s.size = ctx.ParamInt("size", 1)

	var err error
	if s.fast, err = ctx.I("sma_fast", indicator.SMA(fast), ctx.Closes()); err != nil {
		return err
	}
	if s.slow, err = ctx.I("sma_slow", indicator.SMA(slow), ctx.Closes()); err != nil {
		return err
	}
	return nil
}

// Next trades the crossover: a fast-over-slow cross flips the position long,
// the reverse cross flips it short.
func (s *SMACross) Next(ctx *strategy.Context) {
	if ctx.Bar() < 1 {
		return
	}
	fNow, sNow := s.fast.At(-1), s.slow.At(-1)
	fPrev, sPrev := s.fast.At(-2), s.slow.At(-2)
	if math.IsNaN(fNow) || math.IsNaN(sNow) || math.IsNaN(fPrev) || math.IsNaN(sPrev) {
		return
	}

	pos := ctx.Position()
	switch {
	case fPrev <= sPrev && fNow > sNow && !pos.IsLong():
		size := s.size + pos.Abs() // flatten any short, then go long
		ctx.Buy(strategy.OrderSpec{Size: size, Tag: "sma_cross"})
	case fPrev >= sPrev && fNow < sNow && !pos.IsShort():
		size := s.size + pos.Abs()
		ctx.Sell(strategy.OrderSpec{Size: size, Tag: "sma_cross"})
	}
}
