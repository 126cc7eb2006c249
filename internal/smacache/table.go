package smacache

import (
	"errors"
	"sort"

	"ibkr-sma-scanner/internal/types"
)

var (
	ErrEmptyCache    = errors.New("no SMAs computed; cache would be empty")
	ErrCacheNotFound = errors.New("sma cache not found")
)

// Table is the loaded cache keyed by ticker.
type Table map[string]types.SmaRecord

func (t Table) Has(ticker string) bool {
	_, ok := t[ticker]
	return ok
}

func (t Table) Tickers() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RepresentativeDate is the most common cache_date across rows. Ties go to
// the earliest date so the result is deterministic.
func RepresentativeDate(records []types.SmaRecord) string {
	counts := make(map[string]int, 4)
	for _, r := range records {
		counts[r.CacheDate]++
	}

	best, bestN := "", 0
	for date, n := range counts {
		if n > bestN || (n == bestN && date < best) {
			best, bestN = date, n
		}
	}
	return best
}

func recordFrom(ticker string, snap types.SmaSnapshot) types.SmaRecord {
	rec := types.SmaRecord{Ticker: ticker, CacheDate: snap.LastBarDate}
	if v, ok := snap.SMA[50]; ok {
		rec.SMA50 = float64Ptr(v)
	}
	if v, ok := snap.SMA[100]; ok {
		rec.SMA100 = float64Ptr(v)
	}
	if v, ok := snap.SMA[200]; ok {
		rec.SMA200 = float64Ptr(v)
	}
	return rec
}

func float64Ptr(v float64) *float64 { return &v }

// distinct keeps the first occurrence of every ticker.
func distinct(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
