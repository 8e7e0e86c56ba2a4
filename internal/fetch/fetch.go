// Package fetch downloads historical 15-minute crypto bars from the Alpaca
// market-data API into a local bar store.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"backlab/internal/domain"
	"backlab/internal/store"
	"backlab/internal/util"
)

// Fetcher is the interface for bar download jobs.
type Fetcher interface {
	// Name returns the fetcher identifier.
	Name() string
	// Run downloads the configured range and blocks until done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// Compile-time interface check.
var _ Fetcher = (*CryptoBarFetcher)(nil)

// cryptoBarClient is the slice of the Alpaca market-data client the fetcher
// uses.
type cryptoBarClient interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// CryptoBarFetcher downloads 15-minute crypto bars for one symbol over a
// date range, one month per API call, and writes them through a BarStore.
type CryptoBarFetcher struct {
	client  cryptoBarClient
	store   store.BarStore
	symbol  string
	start   string // YYYY-MM-DD
	end     string // YYYY-MM-DD
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewCryptoBarFetcher creates a CryptoBarFetcher with the given Alpaca
// credentials and target store. An empty dataURL uses the SDK default.
func NewCryptoBarFetcher(apiKey, apiSecret, dataURL string, s store.BarStore, symbol, start, end string, ratePerMin int) *CryptoBarFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &CryptoBarFetcher{
		client:  marketdata.NewClient(opts),
		store:   s,
		symbol:  symbol,
		start:   start,
		end:     end,
		limiter: util.NewRateLimiter(ratePerMin),
		log:     slog.Default().With("fetcher", "crypto-15m"),
	}
}

// Name returns the fetcher identifier.
func (f *CryptoBarFetcher) Name() string { return "crypto-15m" }

// Run downloads the configured range month by month. Each month is fetched
// with retries and written to the store before the next one starts, so an
// interrupted run resumes cheaply: already-cached months merge to the same
// bars.
func (f *CryptoBarFetcher) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", f.start)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", f.start, err)
	}
	end, err := time.Parse("2006-01-02", f.end)
	if err != nil {
		return fmt.Errorf("parsing end date %q: %w", f.end, err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s before start date %s", f.end, f.start)
	}

	f.log.Info("starting fetch", "symbol", f.symbol, "start", f.start, "end", f.end)

	total := 0
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 1, 0)
		if next.After(end) {
			next = end
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars []domain.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			bars, ferr = f.fetchWindow(cur, next)
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetching %s from %s: %w", f.symbol, cur.Format("2006-01-02"), err)
		}

		if err := f.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("writing %s bars: %w", f.symbol, err)
		}
		total += len(bars)
		f.log.Info("window done", "from", cur.Format("2006-01-02"), "to", next.Format("2006-01-02"), "bars", len(bars))

		cur = next
	}

	f.log.Info("fetch complete", "symbol", f.symbol, "bars", total)
	return nil
}

// fetchWindow pulls one [start, end) window of 15-minute bars.
func (f *CryptoBarFetcher) fetchWindow(start, end time.Time) ([]domain.Bar, error) {
	cryptoBars, err := f.client.GetCryptoBars(f.symbol, marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.NewTimeFrame(15, marketdata.Min),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(cryptoBars))
	for _, cb := range cryptoBars {
		bars = append(bars, domain.Bar{
			Symbol:    f.symbol,
			Timestamp: cb.Timestamp,
			Open:      cb.Open,
			High:      cb.High,
			Low:       cb.Low,
			Close:     cb.Close,
			Volume:    cb.Volume,
		})
	}
	return bars, nil
}
