package builtins

import (
	"math"

	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BBandsReversion)(nil)

// BBandsReversion fades Bollinger Band excursions: it buys a close below the
// lower band, sells short a close above the upper band, and exits either
// side when price crosses back over the middle band. Parameters: period
// (20), k (2.0), size (1).
type BBandsReversion struct {
	bands *indicator.Handle
	size  int
}

// NewBBandsReversion creates a BBandsReversion strategy.
func NewBBandsReversion() *BBandsReversion {
	return &BBandsReversion{}
}

// Name returns "bbands_reversion".
func (s *BBandsReversion) Name() string {
	return "bbands_reversion"
}

// Init registers the Bollinger Bands indicator over the close series.
func (s *BBandsReversion) Init(ctx *strategy.Context) error {
	period := ctx.ParamInt("period", 20)
	k := ctx.ParamFloat("k", 2.0)
	s.size = ctx.ParamInt("size", 1)

	var err error
	s.bands, err = ctx.I("bbands", indicator.BBands(period, k), ctx.Closes())
	return err
}

// Next fades band breaks and exits at the middle band.
func (s *BBandsReversion) Next(ctx *strategy.Context) {
	upper := s.bands.Line(0).Last()
	mid := s.bands.Line(1).Last()
	lower := s.bands.Line(2).Last()
	if math.IsNaN(upper) || math.IsNaN(mid) || math.IsNaN(lower) {
		return
	}
	close := ctx.Data().Close.Last()

	pos := ctx.Position()
	switch {
	case pos.Size == 0 && close < lower:
		ctx.Buy(strategy.OrderSpec{Size: s.size, Tag: "bbands_reversion"})
	case pos.Size == 0 && close > upper:
		ctx.Sell(strategy.OrderSpec{Size: s.size, Tag: "bbands_reversion"})
	case pos.IsLong() && close >= mid:
		ctx.ClosePosition()
	case pos.IsShort() && close <= mid:
		ctx.ClosePosition()
	}
}
