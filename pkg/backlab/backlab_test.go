package backlab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCSVEndToEnd(t *testing.T) {
	var b strings.Builder
	b.WriteString("datetime,open,high,low,close,volume\n")
	price := 100.0
	for i := 0; i < 60; i++ {
		ts := 1704067200 + int64(i)*900 // 15-minute cadence, unix seconds
		if i%10 < 5 {
			price += 2
		} else {
			price -= 2
		}
		fmt.Fprintf(&b, "%d,%g,%g,%g,%g,100\n", ts, price, price+1, price-1, price)
	}
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	strat, ok := Builtin("sma_cross")
	if !ok {
		t.Fatal("sma_cross missing from builtins")
	}

	res, err := RunCSV(context.Background(), strat, path, "BTC/USD", Config{
		Cash:       10_000,
		Commission: 0.001,
		Params:     Params{"fast": 3, "slow": 8},
	})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}
	if res.Bars != 60 {
		t.Errorf("bars = %d, want 60", res.Bars)
	}
	if len(res.EquityCurve) != 61 {
		t.Errorf("equity samples = %d, want 61", len(res.EquityCurve))
	}
	if res.EquityCurve[0] != 10_000 {
		t.Errorf("equity[0] = %v, want starting cash", res.EquityCurve[0])
	}
}

func TestBuiltinsListed(t *testing.T) {
	names := Builtins()
	if len(names) == 0 {
		t.Fatal("no builtins registered")
	}
	for _, n := range names {
		if _, ok := Builtin(n); !ok {
			t.Errorf("Builtin(%q) not constructible", n)
		}
	}
}
