// Package domain defines the core value types shared across the backtest
// engine: bars, orders, trades, positions, and rejection records.
package domain

import (
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV sample covering a fixed time interval.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Valid reports whether the bar is well formed: all price and volume fields
// finite, volume non-negative, and High/Low bracketing the other prices.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return false
	}
	if b.Low > b.Open || b.Low > b.Close {
		return false
	}
	return b.Volume >= 0
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

// OrderType selects how an order is matched against a bar.
type OrderType string

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"

	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a request to trade a whole number of units. Orders submitted
// during bar b become eligible for matching at the open of bar b+1. A price
// field of zero means "not set"; all prices in this domain are strictly
// positive.
type Order struct {
	ID   string
	Side OrderSide
	Size int
	Type OrderType

	// Limit and Stop are the matching prices for limit and stop orders.
	Limit float64
	Stop  float64

	// SL and TP are protective child prices armed when the order fills. They
	// form an OCO pair: filling one cancels the other.
	SL float64
	TP float64

	Tag        string
	CreatedBar int
	Status     OrderStatus

	// Contingent marks an SL/TP child spawned by a parent fill. Contingent
	// orders only ever reduce the open position and are eligible on the bar
	// that armed them.
	Contingent bool
	ParentID   string
	OCOGroup   string
}

// ---------------------------------------------------------------------------
// Trades and positions
// ---------------------------------------------------------------------------

// Trade records one completed round trip. PnL is gross of commission;
// Commission is the total paid on the entry and exit notional of the traded
// units.
type Trade struct {
	EntryBar   int
	ExitBar    int
	Side       OrderSide
	Size       int
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Commission float64
	Tag        string
}

// NetPnL returns the trade's profit after commission.
func (t Trade) NetPnL() float64 {
	return t.PnL - t.Commission
}

// Position is the net signed exposure in the single instrument. Size is
// positive for long, negative for short, zero when flat. AvgPrice is the
// volume-weighted average entry price of the open units.
type Position struct {
	Size     int
	AvgPrice float64
	EntryBar int
	Tag      string
}

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool { return p.Size > 0 }

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool { return p.Size < 0 }

// Abs returns the unsigned unit count of the position.
func (p Position) Abs() int {
	if p.Size < 0 {
		return -p.Size
	}
	return p.Size
}

// ---------------------------------------------------------------------------
// Rejections
// ---------------------------------------------------------------------------

// Rejection records an order that was refused, either at validation or at
// match time. Rejections are data rather than errors so that strategies can
// be analyzed for silent failures after a run.
type Rejection struct {
	Bar     int
	OrderID string
	Reason  string
}
