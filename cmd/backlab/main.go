package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/config"
	"backlab/internal/domain"
	"backlab/internal/fetch"
	"backlab/internal/store"
	"backlab/internal/strategy/builtins"
	"backlab/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: backlab <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run        Run a backtest and print the report\n")
		fmt.Fprintf(os.Stderr, "  fetch      Download 15-minute crypto bars into the Parquet cache\n")
		fmt.Fprintf(os.Stderr, "  runs       List persisted backtest runs\n")
		fmt.Fprintf(os.Stderr, "  version    Print the backlab version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("backlab %s\n", version)

	case "run":
		cfg := loadConfig()
		if err := runBacktest(cfg); err != nil {
			log.Fatalf("run: %v", err)
		}

	case "fetch":
		cfg := loadConfig()
		if err := runFetch(cfg); err != nil {
			log.Fatalf("fetch: %v", err)
		}

	case "runs":
		cfg := loadConfig()
		if err := listRuns(cfg); err != nil {
			log.Fatalf("runs: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfgPath := "config/backlab.yaml"
	if p := os.Getenv("BACKLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg
}

func runBacktest(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	bars, err := loadBars(cfg)
	if err != nil {
		return err
	}

	strat, ok := builtins.NewRegistry().New(cfg.Backtest.Strategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q (available: %v)",
			cfg.Backtest.Strategy, builtins.NewRegistry().List())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := backtest.Run(ctx, strat, bars, backtest.Config{
		Cash:       cfg.Backtest.Cash,
		Commission: cfg.Backtest.Commission,
		Params:     cfg.Backtest.Params,
	})
	if err != nil {
		return err
	}

	if err := backtest.WriteReport(os.Stdout, res); err != nil {
		return err
	}

	if cfg.Storage.SQLitePath != "" {
		id, err := persistRun(ctx, cfg, res)
		if err != nil {
			return fmt.Errorf("persisting run: %w", err)
		}
		fmt.Printf("%-20s %s\n", "Run ID", id)
	}
	return nil
}

// loadBars prefers the CSV file when configured, falling back to the
// Parquet cache over the fetch date range.
func loadBars(cfg *config.Config) ([]domain.Bar, error) {
	if cfg.Data.CSVPath != "" {
		return store.ReadCSVBars(cfg.Data.CSVPath, cfg.Data.Symbol)
	}

	start, err := time.Parse("2006-01-02", cfg.Fetch.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing fetch.start_date %q: %w", cfg.Fetch.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", cfg.Fetch.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing fetch.end_date %q: %w", cfg.Fetch.EndDate, err)
	}

	pstore := store.NewParquetStore(cfg.Data.ParquetDir)
	bars, err := pstore.ReadBars(context.Background(), cfg.Data.Symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no cached bars for %s in [%s, %s]; run `backlab fetch` first",
			cfg.Data.Symbol, cfg.Fetch.StartDate, cfg.Fetch.EndDate)
	}
	return bars, nil
}

func persistRun(ctx context.Context, cfg *config.Config, res *backtest.Result) (string, error) {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	paramsJSON, err := json.Marshal(cfg.Backtest.Params)
	if err != nil {
		return "", err
	}

	run := &store.RunRecord{
		Strategy:       res.Strategy,
		Symbol:         res.Symbol,
		Bars:           res.Bars,
		Cash:           cfg.Backtest.Cash,
		Commission:     cfg.Backtest.Commission,
		Params:         string(paramsJSON),
		FinalEquity:    res.Stats.FinalEquity,
		TotalReturnPct: res.Stats.TotalReturnPct,
		Sharpe:         res.Stats.Sharpe,
		MaxDrawdownPct: res.Stats.MaxDrawdownPct,
		TradeCount:     res.Stats.TradeCount,
		WinRatePct:     res.Stats.WinRatePct,
	}
	if err := db.SaveRun(ctx, run, res.Trades, res.Rejections); err != nil {
		return "", err
	}
	return run.ID, nil
}

func runFetch(cfg *config.Config) error {
	if cfg.Fetch.StartDate == "" || cfg.Fetch.EndDate == "" {
		return fmt.Errorf("fetch.start_date and fetch.end_date are required")
	}

	pstore := store.NewParquetStore(cfg.Data.ParquetDir)
	fetcher := fetch.NewCryptoBarFetcher(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		cfg.Data.Symbol,
		cfg.Fetch.StartDate,
		cfg.Fetch.EndDate,
		cfg.Fetch.RateLimitPerMin,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("starting %s fetcher\n", fetcher.Name())
	return fetcher.Run(ctx)
}

func listRuns(cfg *config.Config) error {
	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is not configured")
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-16s  %10s  %8s  %6s\n",
		"ID", "CREATED", "STRATEGY", "RETURN", "SHARPE", "TRADES")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-16s  %9.2f%%  %8.2f  %6d\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Strategy,
			r.TotalReturnPct, r.Sharpe, r.TradeCount)
	}
	return nil
}
