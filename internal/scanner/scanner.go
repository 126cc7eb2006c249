package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/smacache"
	"ibkr-sma-scanner/internal/ta"
	"ibkr-sma-scanner/internal/types"
)

// PriceFetcher returns the last price for every symbol it could price.
type PriceFetcher interface {
	FetchSnapshots(ctx context.Context, symbols []string, batchSize int, settle time.Duration) map[string]float64
}

type Options struct {
	BatchSize int
	Settle    time.Duration
}

// Orchestrator runs intraday scans of live prices against the SMA cache.
type Orchestrator struct {
	prices   PriceFetcher
	cache    *smacache.Cache
	reporter interfaces.ScanReporter
	opts     Options
	now      func() time.Time
}

// NewOrchestrator builds an orchestrator. reporter may be nil.
func NewOrchestrator(prices PriceFetcher, cache *smacache.Cache, reporter interfaces.ScanReporter, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	return &Orchestrator{
		prices:   prices,
		cache:    cache,
		reporter: reporter,
		opts:     opts,
		now:      time.Now,
	}
}

// Scan prices the cached part of the universe and keeps the tickers trading
// strictly above all three cached SMAs.
func (o *Orchestrator) Scan(ctx context.Context, universe []string, table smacache.Table, batchSize int, settle time.Duration) types.ScanResult {
	cached, missing := Partition(universe, table)

	var prices map[string]float64
	if len(cached) > 0 {
		prices = o.prices.FetchSnapshots(ctx, cached, batchSize, settle)
	}

	matches := Match(cached, table, prices)
	for _, m := range matches {
		logger.Match(ctx, m.Ticker, m.Price, m.SMA50, m.SMA100, m.SMA200)
	}

	logger.Info(ctx, "Scan complete",
		"universe", len(universe),
		"cached", len(cached),
		"priced", len(prices),
		"matches", len(matches),
		"missing_from_cache", len(missing),
	)
	return types.ScanResult{Matches: matches, MissingFromCache: missing}
}

// Run loads the cache, checks its freshness and scans the universe with the
// configured batching. The result is written through the reporter when one
// is set.
func (o *Orchestrator) Run(ctx context.Context, universe []string) (types.ScanResult, error) {
	runID := uuid.NewString()
	timer := logger.StartOperation(ctx, "scanner.Run", "run_id", runID, "universe", len(universe))
	ctx = timer.GetContext()

	table, cacheDate, err := o.cache.Load(ctx)
	if err != nil {
		timer.EndWithError(err)
		return types.ScanResult{}, fmt.Errorf("load sma cache: %w", err)
	}

	now := o.now()
	expected, stale := o.cache.CheckStaleness(ctx, cacheDate, now)

	res := o.Scan(ctx, universe, table, o.opts.BatchSize, o.opts.Settle)
	res.RunID = runID
	res.CacheDate = cacheDate
	res.ExpectedDate = expected
	res.Stale = stale

	if o.reporter != nil {
		path, err := o.reporter.WriteScan(now, res)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to write scan report", err, "run_id", runID)
		} else {
			logger.Info(ctx, "Scan report written", "path", path)
		}
	}

	timer.End("matches", len(res.Matches))
	return res, nil
}

// Partition splits universe into tickers present in the cache and the distinct
// tickers that are not, both in universe order.
func Partition(universe []string, table smacache.Table) (cached, missing []string) {
	seen := make(map[string]bool, len(universe))
	for _, t := range universe {
		if seen[t] {
			continue
		}
		seen[t] = true
		if table.Has(t) {
			cached = append(cached, t)
		} else {
			missing = append(missing, t)
		}
	}
	return cached, missing
}

// Match returns the priced tickers above all of SMA50, SMA100 and SMA200,
// highest price first.
func Match(tickers []string, table smacache.Table, prices map[string]float64) []types.ScanRow {
	rows := make([]types.ScanRow, 0)
	for _, t := range tickers {
		price, ok := prices[t]
		if !ok {
			continue
		}
		rec, ok := table[t]
		if !ok || rec.SMA50 == nil || rec.SMA100 == nil || rec.SMA200 == nil {
			continue
		}
		if !ta.AboveAll(price, *rec.SMA50, *rec.SMA100, *rec.SMA200) {
			continue
		}
		rows = append(rows, types.ScanRow{
			Ticker: t,
			Price:  ta.Round2(price),
			SMA50:  *rec.SMA50,
			SMA100: *rec.SMA100,
			SMA200: *rec.SMA200,
		})
	}

	sortRows(rows)
	return rows
}

// sortRows orders by price descending, ticker ascending on ties.
func sortRows(rows []types.ScanRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Price != rows[j].Price {
			return rows[i].Price > rows[j].Price
		}
		return rows[i].Ticker < rows[j].Ticker
	})
}
