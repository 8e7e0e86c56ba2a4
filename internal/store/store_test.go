package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backlab/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

func TestReadCSVBars(t *testing.T) {
	path := writeFile(t, "bars.csv", `Unnamed: 0, Datetime ,OPEN,High,low,Close,Volume,extra
0,2024-01-01 00:00:00,100,101,99,100.5,12.5,x
1,2024-01-01 00:15:00,100.5,102,100,101,8,x
2,2024-01-01 00:30:00,101,103,100,102,9,x
`)

	bars, err := ReadCSVBars(path, "BTC/USD")
	if err != nil {
		t.Fatalf("ReadCSVBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("bars = %d, want 3", len(bars))
	}
	b := bars[0]
	if b.Symbol != "BTC/USD" || b.Open != 100 || b.High != 101 || b.Low != 99 || b.Close != 100.5 || b.Volume != 12.5 {
		t.Errorf("bar 0 = %+v", b)
	}
	want := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	if !bars[1].Timestamp.Equal(want) {
		t.Errorf("bar 1 timestamp = %v, want %v", bars[1].Timestamp, want)
	}
}

func TestReadCSVBarsSortsAndDedups(t *testing.T) {
	// Out of order, with a duplicate timestamp where the later row wins.
	path := writeFile(t, "bars.csv", `timestamp,open,high,low,close,volume
2024-01-01 00:30:00,101,103,100,102,9
2024-01-01 00:00:00,100,101,99,100,12
2024-01-01 00:30:00,200,203,199,202,9
2024-01-01 00:15:00,100,102,100,101,8
`)

	bars, err := ReadCSVBars(path, "BTC/USD")
	if err != nil {
		t.Fatalf("ReadCSVBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("bars = %d, want 3 after dedup", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Timestamp.Before(bars[i].Timestamp) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
	}
	if bars[2].Open != 200 {
		t.Errorf("duplicate timestamp: open = %v, want last-write 200", bars[2].Open)
	}
}

func TestReadCSVBarsErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing column", "datetime,open,high,low,close\n2024-01-01,1,2,0.5,1\n"},
		{"bad timestamp", "datetime,open,high,low,close,volume\nnot-a-time,1,2,0.5,1,10\n"},
		{"bad number", "datetime,open,high,low,close,volume\n2024-01-01,abc,2,0.5,1,10\n"},
		{"non-finite", "datetime,open,high,low,close,volume\n2024-01-01,NaN,2,0.5,1,10\n"},
		{"no rows", "datetime,open,high,low,close,volume\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tc.content)
			if _, err := ReadCSVBars(path, "BTC/USD"); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCSVStoreRange(t *testing.T) {
	path := writeFile(t, "bars.csv", `datetime,open,high,low,close,volume
2024-01-01 00:00:00,100,101,99,100,1
2024-01-01 00:15:00,100,101,99,100,1
2024-01-01 00:30:00,100,101,99,100,1
`)
	s := NewCSVStore(path)
	start := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	bars, err := s.ReadBars(context.Background(), "BTC/USD", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("bars in range = %d, want 2", len(bars))
	}
	if err := s.WriteBars(context.Background(), nil); err == nil {
		t.Error("WriteBars on CSV should fail")
	}
}

// ---------------------------------------------------------------------------
// Parquet
// ---------------------------------------------------------------------------

func testBars(n int, start time.Time) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    "BTC/USD",
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    10,
		}
	}
	return bars
}

func TestParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := testBars(5, start)

	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "BTC/USD", start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("bars = %d, want 5", len(got))
	}
	if got[0].Open != 100 || got[4].Close != 104.5 {
		t.Errorf("round trip values: %+v ... %+v", got[0], got[4])
	}
	if !got[2].Timestamp.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("timestamp round trip: %v", got[2].Timestamp)
	}

	syms, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 1 || syms[0] != "BTCUSD" {
		t.Errorf("symbols = %v, want [BTCUSD]", syms)
	}
}

func TestParquetMergeDedup(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.WriteBars(ctx, testBars(4, start)); err != nil {
		t.Fatalf("first WriteBars: %v", err)
	}
	// Overlapping refetch: bars 2..5, with different values for the overlap.
	second := testBars(4, start.Add(30*time.Minute))
	for i := range second {
		second[i].Open = 500
	}
	if err := s.WriteBars(ctx, second); err != nil {
		t.Fatalf("second WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "BTC/USD", start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("bars after merge = %d, want 6", len(got))
	}
	if got[1].Open == 500 {
		t.Error("bar 1 should keep its original value")
	}
	if got[2].Open != 500 {
		t.Errorf("bar 2 open = %v, want incoming 500", got[2].Open)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Fatalf("merged bars not sorted at %d", i)
		}
	}
}

func TestParquetReadMissing(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := s.ReadBars(context.Background(), "BTC/USD", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadBars on empty store: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("bars = %d, want 0", len(bars))
	}
}

// ---------------------------------------------------------------------------
// SQLite
// ---------------------------------------------------------------------------

func TestSQLiteRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	run := &RunRecord{
		Strategy:       "sma_cross",
		Symbol:         "BTC/USD",
		Bars:           1000,
		Cash:           10_000,
		Commission:     0.001,
		Params:         `{"fast":10,"slow":30}`,
		FinalEquity:    11_250.5,
		TotalReturnPct: 12.505,
		Sharpe:         1.8,
		MaxDrawdownPct: 4.2,
		TradeCount:     2,
		WinRatePct:     50,
	}
	trades := []domain.Trade{
		{EntryBar: 10, ExitBar: 20, Side: domain.OrderSideBuy, Size: 1,
			EntryPrice: 100, ExitPrice: 110, PnL: 10, Commission: 0.21, Tag: "sma_cross"},
		{EntryBar: 30, ExitBar: 35, Side: domain.OrderSideSell, Size: 2,
			EntryPrice: 120, ExitPrice: 125, PnL: -10, Commission: 0.49},
	}
	rejections := []domain.Rejection{
		{Bar: 5, OrderID: "o-000001", Reason: "insufficient cash: need 500.00, have 100.00"},
	}

	if err := s.SaveRun(ctx, run, trades, rejections); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("SaveRun should assign an ID")
	}

	got, gotTrades, gotRejs, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != "sma_cross" || got.FinalEquity != 11_250.5 || got.TradeCount != 2 {
		t.Errorf("run = %+v", got)
	}
	if got.Params != `{"fast":10,"slow":30}` {
		t.Errorf("params = %q", got.Params)
	}
	if len(gotTrades) != 2 {
		t.Fatalf("trades = %d, want 2", len(gotTrades))
	}
	if gotTrades[0] != trades[0] || gotTrades[1] != trades[1] {
		t.Errorf("trades round trip: %+v", gotTrades)
	}
	if len(gotRejs) != 1 || gotRejs[0] != rejections[0] {
		t.Errorf("rejections round trip: %+v", gotRejs)
	}
}

func TestSQLiteListRuns(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &RunRecord{
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Strategy:  "sma_cross",
			Symbol:    "BTC/USD",
			Params:    "{}",
		}
		if err := s.SaveRun(ctx, run, nil, nil); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Errorf("runs not newest first: %v, %v", runs[0].CreatedAt, runs[1].CreatedAt)
	}

	if _, _, _, err := s.GetRun(ctx, "missing"); err == nil {
		t.Error("GetRun(missing) should fail")
	}
}
