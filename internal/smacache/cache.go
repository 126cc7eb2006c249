package smacache

import (
	"context"
	"fmt"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

const progressEvery = 25

// SmaFetcher computes SMAs for one symbol. A symbol without data comes back
// with an empty SMA map.
type SmaFetcher interface {
	FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot
}

// Cache rebuilds and loads the SMA table through a CacheStore.
type Cache struct {
	store   interfaces.CacheStore
	fetcher SmaFetcher
	clock   MarketClock
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(store interfaces.CacheStore, fetcher SmaFetcher, clock MarketClock) *Cache {
	return &Cache{store: store, fetcher: fetcher, clock: clock, sleep: sleepCtx}
}

func (c *Cache) Clock() MarketClock { return c.clock }

// Rebuild fetches SMAs for every distinct ticker, pacing pacing between
// requests, and swaps the stored table when at least one ticker produced a
// value. It returns the number of rows written.
func (c *Cache) Rebuild(ctx context.Context, universe []string, windows []int, pacing time.Duration) (int, error) {
	tickers := distinct(universe)
	timer := logger.StartOperation(ctx, "smacache.Rebuild", "tickers", len(tickers))
	ctx = timer.GetContext()

	records := make([]types.SmaRecord, 0, len(tickers))
	for i, t := range tickers {
		if err := ctx.Err(); err != nil {
			timer.EndWithError(err, "done", i)
			return 0, fmt.Errorf("rebuild cancelled after %d tickers: %w", i, err)
		}

		snap := c.fetcher.FetchSmaAndLastPrice(ctx, t, windows)
		if len(snap.SMA) > 0 {
			records = append(records, recordFrom(t, snap))
		} else {
			logger.Debug(ctx, "No SMA data", "symbol", t)
		}

		if (i+1)%progressEvery == 0 {
			logger.Info(ctx, "Cache rebuild progress", "done", i+1, "total", len(tickers), "cached", len(records))
		}
		if i < len(tickers)-1 && pacing > 0 {
			if err := c.sleep(ctx, pacing); err != nil {
				timer.EndWithError(err, "done", i+1)
				return 0, fmt.Errorf("rebuild cancelled after %d tickers: %w", i+1, err)
			}
		}
	}

	if len(records) == 0 {
		timer.EndWithError(ErrEmptyCache)
		return 0, ErrEmptyCache
	}
	if err := c.store.Replace(ctx, records); err != nil {
		timer.EndWithError(err)
		return 0, fmt.Errorf("write sma cache: %w", err)
	}

	timer.End("cached", len(records), "skipped", len(tickers)-len(records))
	return len(records), nil
}

// Load reads the stored table and its representative cache date.
func (c *Cache) Load(ctx context.Context) (Table, string, error) {
	records, err := c.store.LoadAll(ctx)
	if err != nil {
		return nil, "", err
	}
	table := make(Table, len(records))
	for _, r := range records {
		table[r.Ticker] = r
	}
	return table, RepresentativeDate(records), nil
}

// CheckStaleness compares the cache date with the date expected at now and
// logs a warning when they differ. An unknown cache date is never stale.
func (c *Cache) CheckStaleness(ctx context.Context, cacheDate string, now time.Time) (expected string, stale bool) {
	expected = c.clock.ExpectedAsOfDate(now)
	if cacheDate == "" || cacheDate == expected {
		return expected, false
	}
	logger.Warn(ctx, "SMA cache may be stale, consider rebuilding",
		"cache_date", cacheDate,
		"expected", expected,
	)
	return expected, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
