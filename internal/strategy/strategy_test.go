package strategy

import (
	"errors"
	"testing"
	"time"

	"backlab/internal/broker"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/params"
	"backlab/internal/series"
)

func testSeries(t *testing.T, closes []float64) *series.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "BTC/USD",
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	return s
}

func testContext(t *testing.T, closes []float64) *Context {
	t.Helper()
	s := testSeries(t, closes)
	return NewContext(s, broker.New(10_000, 0, nil), params.Map{"fast": 2})
}

func TestLifecycleInitPhase(t *testing.T) {
	ctx := testContext(t, []float64{100, 101, 102, 103})

	// Indicator registration and full arrays are available during init.
	h, err := ctx.I("sma", indicator.SMA(2), ctx.Closes())
	if err != nil {
		t.Fatalf("I during init: %v", err)
	}
	if h == nil || h.Name() != "sma" {
		t.Fatalf("handle = %v", h)
	}

	// Order entry is not.
	if _, err := ctx.Buy(OrderSpec{Size: 1}); err == nil {
		t.Fatal("Buy during init should fail")
	} else {
		var le *LifecycleError
		if !errors.As(err, &le) || le.Phase != "init" {
			t.Errorf("err = %v, want *LifecycleError in init phase", err)
		}
	}
	if _, err := ctx.ClosePosition(); err == nil {
		t.Error("ClosePosition during init should fail")
	}
}

func TestLifecycleNextPhase(t *testing.T) {
	ctx := testContext(t, []float64{100, 101, 102, 103})
	ctx.Advance(0)

	if _, err := ctx.I("late", indicator.SMA(2)); err == nil {
		t.Fatal("I during next should fail")
	} else {
		var le *LifecycleError
		if !errors.As(err, &le) || le.Phase != "next" {
			t.Errorf("err = %v, want *LifecycleError in next phase", err)
		}
	}

	// Full arrays leak future bars after init: they must panic.
	func() {
		defer func() {
			var le *LifecycleError
			if r := recover(); r == nil {
				t.Error("Closes after init should panic")
			} else if err, ok := r.(error); !ok || !errors.As(err, &le) {
				t.Errorf("panic value = %v, want *LifecycleError", r)
			}
		}()
		ctx.Closes()
	}()

	// Orders flow through to the broker.
	id, err := ctx.Buy(OrderSpec{Size: 1, Tag: "t"})
	if err != nil || id == "" {
		t.Fatalf("Buy = (%q, %v)", id, err)
	}
	if got := len(ctx.Orders()); got != 1 {
		t.Errorf("pending orders = %d, want 1", got)
	}
	if !ctx.CancelOrder(id) {
		t.Error("CancelOrder should find the pending order")
	}
}

func TestOrderSpecMapping(t *testing.T) {
	s := testSeries(t, []float64{100, 101, 102})
	sim := broker.New(10_000, 0, nil)
	ctx := NewContext(s, sim, nil)
	ctx.Advance(0)

	ctx.Buy(OrderSpec{Size: 1, Limit: 99})
	ctx.Sell(OrderSpec{Size: 1, Stop: 95})
	ctx.Buy(OrderSpec{Size: 1})

	orders := sim.Pending()
	if len(orders) != 3 {
		t.Fatalf("pending = %d, want 3", len(orders))
	}
	if orders[0].Type != domain.OrderTypeLimit || orders[0].Limit != 99 {
		t.Errorf("order 0 = %+v, want limit 99", orders[0])
	}
	if orders[1].Type != domain.OrderTypeStop || orders[1].Stop != 95 {
		t.Errorf("order 1 = %+v, want stop 95", orders[1])
	}
	if orders[2].Type != domain.OrderTypeMarket {
		t.Errorf("order 2 = %+v, want market", orders[2])
	}
	for i, o := range orders {
		if o.CreatedBar != 0 {
			t.Errorf("order %d CreatedBar = %d, want 0", i, o.CreatedBar)
		}
	}
}

func TestClosePositionWhenFlat(t *testing.T) {
	ctx := testContext(t, []float64{100, 101})
	ctx.Advance(0)
	id, err := ctx.ClosePosition()
	if id != "" || err != nil {
		t.Errorf("ClosePosition when flat = (%q, %v), want no-op", id, err)
	}
}

func TestEquityAndParams(t *testing.T) {
	ctx := testContext(t, []float64{100, 101})
	if got := ctx.Equity(); got != 10_000 {
		t.Errorf("Equity before iteration = %v, want starting cash", got)
	}
	ctx.Advance(1)
	if got := ctx.Equity(); got != 10_000 {
		t.Errorf("Equity while flat = %v, want starting cash", got)
	}
	if got := ctx.ParamInt("fast", 0); got != 2 {
		t.Errorf("ParamInt(fast) = %d, want 2", got)
	}
	if got := ctx.ParamInt("slow", 30); got != 30 {
		t.Errorf("ParamInt(slow) = %d, want default 30", got)
	}
	if got := ctx.Bar(); got != 1 {
		t.Errorf("Bar = %d, want 1", got)
	}
	if got := ctx.Bars(); got != 2 {
		t.Errorf("Bars = %d, want 2", got)
	}
	if got := ctx.Symbol(); got != "BTC/USD" {
		t.Errorf("Symbol = %q", got)
	}
}

func TestRegistryFactories(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() Strategy { return &stubStrategy{name: "b"} })
	r.Register("a", func() Strategy { return &stubStrategy{name: "a"} })

	s1, ok := r.New("a")
	if !ok {
		t.Fatal("New(a) not found")
	}
	s2, _ := r.New("a")
	if s1 == s2 {
		t.Error("factories must produce fresh instances per call")
	}
	if _, ok := r.New("missing"); ok {
		t.Error("New(missing) = ok, want false")
	}
	if got := r.List(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("List = %v, want [a b]", got)
	}
}

type stubStrategy struct{ name string }

func (s *stubStrategy) Name() string              { return s.name }
func (s *stubStrategy) Init(ctx *Context) error   { return nil }
func (s *stubStrategy) Next(ctx *Context)         {}
