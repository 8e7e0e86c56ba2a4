package domain

import (
	"math"
	"testing"
	"time"
)

func TestBarValid(t *testing.T) {
	base := Bar{
		Symbol:    "BTC/USD",
		Timestamp: time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC),
		Open:      100, High: 105, Low: 99, Close: 104,
		Volume: 12.5,
	}
	if !base.Valid() {
		t.Fatal("expected well-formed bar to be valid")
	}

	cases := []struct {
		name   string
		mutate func(*Bar)
	}{
		{"nan close", func(b *Bar) { b.Close = math.NaN() }},
		{"inf high", func(b *Bar) { b.High = math.Inf(1) }},
		{"negative volume", func(b *Bar) { b.Volume = -1 }},
		{"high below open", func(b *Bar) { b.High = 99.5 }},
		{"high below close", func(b *Bar) { b.High = 103 }},
		{"high below low", func(b *Bar) { b.High, b.Open, b.Close = 98, 98, 98 }},
		{"low above open", func(b *Bar) { b.Low = 101 }},
		{"low above close", func(b *Bar) { b.Low = 104.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := base
			tc.mutate(&b)
			if b.Valid() {
				t.Errorf("expected bar to be invalid")
			}
		})
	}
}

func TestOrderConstants(t *testing.T) {
	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("order side constants have unexpected values")
	}
	if OrderTypeMarket != "market" || OrderTypeLimit != "limit" || OrderTypeStop != "stop" {
		t.Error("order type constants have unexpected values")
	}
	if OrderStatusPending != "pending" || OrderStatusRejected != "rejected" {
		t.Error("order status constants have unexpected values")
	}
}

func TestPositionHelpers(t *testing.T) {
	flat := Position{}
	if flat.IsLong() || flat.IsShort() || flat.Abs() != 0 {
		t.Error("zero-value position should be flat")
	}

	long := Position{Size: 3, AvgPrice: 100}
	if !long.IsLong() || long.IsShort() || long.Abs() != 3 {
		t.Errorf("long position helpers wrong: %+v", long)
	}

	short := Position{Size: -2, AvgPrice: 100}
	if short.IsLong() || !short.IsShort() || short.Abs() != 2 {
		t.Errorf("short position helpers wrong: %+v", short)
	}
}

func TestTradeNetPnL(t *testing.T) {
	tr := Trade{PnL: 50, Commission: 4}
	if got := tr.NetPnL(); got != 46 {
		t.Errorf("NetPnL = %v, want 46", got)
	}
}
