package strategy

import (
	"backlab/internal/broker"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/params"
	"backlab/internal/series"
)

const (
	phaseInit = "init"
	phaseNext = "next"
)

// Context is the facade handed to Strategy.Init and Strategy.Next. It owns
// the bar cursor, the indicator registry and the order entry path, and it
// enforces the two-phase lifecycle: indicators are registered during Init,
// orders are placed during Next.
type Context struct {
	data   *series.Series
	views  *series.OHLCV
	cursor *series.Cursor
	sim    *broker.Sim
	reg    *indicator.Registry
	params params.Map
	phase  string
}

// NewContext builds a Context over the given series and broker, in the init
// phase. The backtest runner calls Advance to move it through the bars.
func NewContext(data *series.Series, sim *broker.Sim, p params.Map) *Context {
	cursor := series.NewCursor()
	return &Context{
		data:   data,
		views:  data.Views(cursor),
		cursor: cursor,
		sim:    sim,
		reg:    indicator.NewRegistry(data.Len(), cursor),
		params: p,
		phase:  phaseInit,
	}
}

// Advance positions the Context on bar b and switches it into the next
// phase. Called by the backtest runner once per bar, before Strategy.Next.
func (c *Context) Advance(b int) {
	c.cursor.Set(b)
	c.phase = phaseNext
}

// Bar returns the index of the current bar, or -1 before iteration starts.
func (c *Context) Bar() int { return c.cursor.Pos() }

// Bars returns the total number of bars in the series.
func (c *Context) Bars() int { return c.data.Len() }

// Symbol returns the instrument symbol of the underlying series.
func (c *Context) Symbol() string { return c.data.Symbol() }

// ---------------------------------------------------------------------------
// Init phase: indicator registration
// ---------------------------------------------------------------------------

// I registers an indicator under name, computed by fn over the given
// full-length inputs, and returns its handle. Calling I outside Init returns
// a *LifecycleError.
func (c *Context) I(name string, fn indicator.Func, inputs ...[]float64) (*indicator.Handle, error) {
	if c.phase != phaseInit {
		return nil, &LifecycleError{Op: "I", Phase: c.phase}
	}
	return c.reg.Register(name, fn, inputs...)
}

// Opens returns the full open-price array for use as an indicator input.
// The full arrays are only visible during Init; afterwards they would leak
// future bars, so these accessors panic with a *LifecycleError that the
// runner turns into a run-aborting error.
func (c *Context) Opens() []float64 { return c.fullArray("Opens", c.data.Opens()) }

// Highs returns the full high-price array for use as an indicator input.
func (c *Context) Highs() []float64 { return c.fullArray("Highs", c.data.Highs()) }

// Lows returns the full low-price array for use as an indicator input.
func (c *Context) Lows() []float64 { return c.fullArray("Lows", c.data.Lows()) }

// Closes returns the full close-price array for use as an indicator input.
func (c *Context) Closes() []float64 { return c.fullArray("Closes", c.data.Closes()) }

// Volumes returns the full volume array for use as an indicator input.
func (c *Context) Volumes() []float64 { return c.fullArray("Volumes", c.data.Volumes()) }

func (c *Context) fullArray(op string, a []float64) []float64 {
	if c.phase != phaseInit {
		panic(&LifecycleError{Op: op, Phase: c.phase})
	}
	return a
}

// ---------------------------------------------------------------------------
// Next phase: order entry
// ---------------------------------------------------------------------------

// Buy submits a buy order built from spec and returns its ID. The order
// becomes eligible to fill at the open of the following bar. A *LifecycleError
// is returned when called during Init; validation failures are not errors,
// they show up as rejections in the broker's log.
func (c *Context) Buy(spec OrderSpec) (string, error) {
	return c.submit(domain.OrderSideBuy, spec)
}

// Sell submits a sell order built from spec and returns its ID.
func (c *Context) Sell(spec OrderSpec) (string, error) {
	return c.submit(domain.OrderSideSell, spec)
}

func (c *Context) submit(side domain.OrderSide, spec OrderSpec) (string, error) {
	if c.phase != phaseNext {
		return "", &LifecycleError{Op: "order submission", Phase: c.phase}
	}
	typ := domain.OrderTypeMarket
	switch {
	case spec.Limit != 0 && spec.Stop != 0:
		// Mutually exclusive; let validation reject it with a logged reason.
	case spec.Limit != 0:
		typ = domain.OrderTypeLimit
	case spec.Stop != 0:
		typ = domain.OrderTypeStop
	}
	o := &domain.Order{
		Side:       side,
		Size:       spec.Size,
		Type:       typ,
		Limit:      spec.Limit,
		Stop:       spec.Stop,
		SL:         spec.SL,
		TP:         spec.TP,
		Tag:        spec.Tag,
		CreatedBar: c.cursor.Pos(),
	}
	return c.sim.Submit(o), nil
}

// ClosePosition submits a market order that flattens the current position
// and returns its ID. When already flat it returns an empty ID and no error.
func (c *Context) ClosePosition() (string, error) {
	if c.phase != phaseNext {
		return "", &LifecycleError{Op: "ClosePosition", Phase: c.phase}
	}
	pos := c.sim.Position()
	if pos.Size == 0 {
		return "", nil
	}
	side := domain.OrderSideSell
	if pos.IsShort() {
		side = domain.OrderSideBuy
	}
	o := &domain.Order{
		Side:       side,
		Size:       pos.Abs(),
		Type:       domain.OrderTypeMarket,
		Tag:        pos.Tag,
		CreatedBar: c.cursor.Pos(),
	}
	return c.sim.Submit(o), nil
}

// CancelOrder flags the pending order for cancellation at the next match
// step. It reports whether the ID named a live pending order.
func (c *Context) CancelOrder(id string) bool {
	if c.phase != phaseNext {
		return false
	}
	return c.sim.RequestCancel(id)
}

// ---------------------------------------------------------------------------
// State access
// ---------------------------------------------------------------------------

// Data returns the prefix views over the OHLCV arrays. At(-1) is the current
// bar; non-negative offsets panic with a *series.LookaheadError.
func (c *Context) Data() *series.OHLCV { return c.views }

// Position returns the current net position.
func (c *Context) Position() domain.Position { return c.sim.Position() }

// Equity returns cash plus position marked at the current bar's close, or
// plain cash before iteration starts.
func (c *Context) Equity() float64 {
	if c.cursor.Pos() < 0 {
		return c.sim.Cash()
	}
	return c.sim.EquityAt(c.views.Close.Last())
}

// Cash returns the current cash balance.
func (c *Context) Cash() float64 { return c.sim.Cash() }

// Trades returns the closed trades so far.
func (c *Context) Trades() []domain.Trade { return c.sim.Trades() }

// Orders returns a snapshot of the pending orders.
func (c *Context) Orders() []domain.Order { return c.sim.Pending() }

// ParamInt returns the named strategy parameter as an int, or def.
func (c *Context) ParamInt(key string, def int) int { return c.params.Int(key, def) }

// ParamFloat returns the named strategy parameter as a float64, or def.
func (c *Context) ParamFloat(key string, def float64) float64 { return c.params.Float(key, def) }

// ParamString returns the named strategy parameter as a string, or def.
func (c *Context) ParamString(key string, def string) string { return c.params.String(key, def) }

// ParamBool returns the named strategy parameter as a bool, or def.
func (c *Context) ParamBool(key string, def bool) bool { return c.params.Bool(key, def) }
