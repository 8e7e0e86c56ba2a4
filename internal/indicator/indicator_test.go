package indicator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"backlab/internal/series"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestSMA(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5}
	outs, err := SMA(3)(src)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	out := outs[0]
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("SMA warm-up values should be NaN")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(out[i+2], w) {
			t.Errorf("SMA[%d] = %v, want %v", i+2, out[i+2], w)
		}
	}
}

func TestSMABadInputs(t *testing.T) {
	if _, err := SMA(0)([]float64{1, 2, 3}); err == nil {
		t.Error("SMA(0) should fail")
	}
	if _, err := SMA(2)([]float64{1}, []float64{2}); err == nil {
		t.Error("SMA with two inputs should fail")
	}
}

func TestEMASeed(t *testing.T) {
	src := []float64{2, 4, 6, 8}
	outs, err := EMA(2)(src)
	if err != nil {
		t.Fatalf("EMA: %v", err)
	}
	out := outs[0]
	if !math.IsNaN(out[0]) {
		t.Error("EMA[0] should be NaN")
	}
	// Seed = mean(2,4) = 3; alpha = 2/3.
	if !almostEqual(out[1], 3) {
		t.Errorf("EMA[1] = %v, want 3", out[1])
	}
	if !almostEqual(out[2], 6*2.0/3+3*1.0/3) {
		t.Errorf("EMA[2] = %v", out[2])
	}
}

func TestRSIBounds(t *testing.T) {
	// Monotonic rise: RSI pegged at 100 once warmed up.
	src := make([]float64, 20)
	for i := range src {
		src[i] = float64(i)
	}
	outs, err := RSI(14)(src)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	out := outs[0]
	for i := 0; i < 14; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("RSI[%d] should be NaN during warm-up", i)
		}
	}
	for i := 14; i < len(out); i++ {
		if out[i] != 100 {
			t.Errorf("RSI[%d] = %v, want 100 on a monotonic rise", i, out[i])
		}
	}
}

func TestBBandsOrdering(t *testing.T) {
	src := []float64{10, 12, 11, 13, 12, 14, 13, 15}
	outs, err := BBands(4, 2)(src)
	if err != nil {
		t.Fatalf("BBands: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("BBands produced %d outputs, want 3", len(outs))
	}
	upper, mid, lower := outs[0], outs[1], outs[2]
	for i := 3; i < len(src); i++ {
		if !(upper[i] >= mid[i] && mid[i] >= lower[i]) {
			t.Errorf("band ordering broken at %d: %v %v %v", i, upper[i], mid[i], lower[i])
		}
	}
	// Middle band is the SMA.
	if !almostEqual(mid[3], (10+12+11+13)/4.0) {
		t.Errorf("mid[3] = %v", mid[3])
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 10
	high := make([]float64, n)
	low := make([]float64, n)
	cls := make([]float64, n)
	for i := range high {
		high[i] = 105
		low[i] = 95
		cls[i] = 100
	}
	outs, err := ATR(3)(high, low, cls)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	out := outs[0]
	for i := 3; i < n; i++ {
		if !almostEqual(out[i], 10) {
			t.Errorf("ATR[%d] = %v, want 10 for constant range", i, out[i])
		}
	}
}

func TestMACDShape(t *testing.T) {
	src := make([]float64, 60)
	for i := range src {
		src[i] = 100 + math.Sin(float64(i)/5)*10
	}
	outs, err := MACD(12, 26, 9)(src)
	if err != nil {
		t.Fatalf("MACD: %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("MACD produced %d outputs, want 3", len(outs))
	}
	line, sig, hist := outs[0], outs[1], outs[2]
	for i := 40; i < 60; i++ {
		if math.IsNaN(line[i]) || math.IsNaN(sig[i]) || math.IsNaN(hist[i]) {
			t.Fatalf("MACD outputs still NaN at %d", i)
		}
		if !almostEqual(hist[i], line[i]-sig[i]) {
			t.Errorf("hist[%d] = %v, want line-signal = %v", i, hist[i], line[i]-sig[i])
		}
	}
}

func TestRegistryRegisterAndViews(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5, 6}
	cursor := series.NewCursor()
	r := NewRegistry(len(src), cursor)

	h, err := r.Register("sma3", SMA(3), src)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.NumLines() != 1 {
		t.Errorf("NumLines = %d, want 1", h.NumLines())
	}

	cursor.Set(3)
	if got := h.At(-1); !almostEqual(got, 3) {
		t.Errorf("sma3.At(-1) at bar 3 = %v, want 3", got)
	}
	if got := h.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}

	if _, ok := r.Get("sma3"); !ok {
		t.Error("Get should find registered indicator")
	}
	if _, err := r.Register("sma3", SMA(3), src); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestRegistryMultiOutput(t *testing.T) {
	src := []float64{10, 12, 11, 13, 12, 14}
	cursor := series.NewCursor()
	r := NewRegistry(len(src), cursor)

	h, err := r.Register("bb", BBands(3, 2), src)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.NumLines() != 3 {
		t.Fatalf("NumLines = %d, want 3", h.NumLines())
	}

	cursor.Set(5)
	upper := h.At(-1) // handle reads as the first output
	if got := h.Line(0).At(-1); got != upper {
		t.Errorf("Line(0) should match the handle's own view")
	}
	if !(h.Line(0).At(-1) >= h.Line(1).At(-1) && h.Line(1).At(-1) >= h.Line(2).At(-1)) {
		t.Error("band views out of order")
	}
}

func TestRegistryShapeError(t *testing.T) {
	cursor := series.NewCursor()
	r := NewRegistry(5, cursor)

	truncating := func(inputs ...[]float64) ([][]float64, error) {
		return [][]float64{inputs[0][:len(inputs[0])-1]}, nil
	}
	_, err := r.Register("bad", truncating, []float64{1, 2, 3, 4, 5})
	var serr *ShapeError
	if !errors.As(err, &serr) {
		t.Fatalf("Register returned %v, want *ShapeError", err)
	}
	if serr.Got != 4 || serr.Want != 5 {
		t.Errorf("ShapeError = %+v", serr)
	}
}

func TestRegistryAnnotatesFnError(t *testing.T) {
	cursor := series.NewCursor()
	r := NewRegistry(3, cursor)

	failing := func(_ ...[]float64) ([][]float64, error) {
		return nil, errors.New("boom")
	}
	_, err := r.Register("myind", failing, []float64{1, 2, 3})
	if err == nil {
		t.Fatal("Register should propagate the function error")
	}
	if want := `indicator "myind"`; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should mention %q", err, want)
	}
}
