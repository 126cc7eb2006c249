package smacache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	records  []types.SmaRecord
	written  bool
	replaces int
	failWith error
}

func (m *memStore) Replace(ctx context.Context, records []types.SmaRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.records = append([]types.SmaRecord(nil), records...)
	m.written = true
	m.replaces++
	return nil
}

func (m *memStore) LoadAll(ctx context.Context) ([]types.SmaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.written {
		return nil, ErrCacheNotFound
	}
	return append([]types.SmaRecord(nil), m.records...), nil
}

func (m *memStore) Close() error { return nil }

type stubFetcher struct {
	mu    sync.Mutex
	data  map[string]types.SmaSnapshot
	calls []string
}

func (f *stubFetcher) FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	if snap, ok := f.data[symbol]; ok {
		return snap
	}
	return types.SmaSnapshot{Symbol: symbol, SMA: map[int]float64{}}
}

func newTestCache(store *memStore, fetcher *stubFetcher) (*Cache, *[]time.Duration) {
	c := New(store, fetcher, DefaultMarketClock())
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func TestRebuildWritesRowsWithSMAs(t *testing.T) {
	store := &memStore{}
	fetcher := &stubFetcher{data: map[string]types.SmaSnapshot{
		"AAPL": {Symbol: "AAPL", SMA: map[int]float64{50: 180, 100: 175, 200: 170}, LastBarDate: "2024-03-08"},
		"IPO":  {Symbol: "IPO", SMA: map[int]float64{50: 12.5}, LastBarDate: "2024-03-08"},
	}}
	c, sleeps := newTestCache(store, fetcher)

	n, err := c.Rebuild(context.Background(), []string{"AAPL", "NODATA", "IPO", "AAPL"}, []int{50, 100, 200}, 800*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows, got %d", n)
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("Expected duplicates fetched once, got calls %v", fetcher.calls)
	}
	if len(*sleeps) != 2 {
		t.Errorf("Expected 2 pacing sleeps, got %d", len(*sleeps))
	}

	table, date, err := c.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if date != "2024-03-08" {
		t.Errorf("Expected cache date 2024-03-08, got %s", date)
	}
	if table.Has("NODATA") {
		t.Error("Expected ticker without data to be skipped")
	}
	ipo := table["IPO"]
	if ipo.SMA50 == nil || *ipo.SMA50 != 12.5 || ipo.SMA100 != nil || ipo.SMA200 != nil {
		t.Errorf("Expected IPO with only SMA50, got %+v", ipo)
	}
}

func TestRebuildEmptyKeepsPreviousCache(t *testing.T) {
	store := &memStore{}
	store.records = []types.SmaRecord{{Ticker: "OLD", CacheDate: "2024-01-02"}}
	store.written = true
	c, _ := newTestCache(store, &stubFetcher{})

	_, err := c.Rebuild(context.Background(), []string{"A", "B"}, []int{50}, 0)
	if !errors.Is(err, ErrEmptyCache) {
		t.Fatalf("Expected ErrEmptyCache, got %v", err)
	}
	if store.replaces != 0 {
		t.Error("Expected the store to be left untouched")
	}
	table, _, err := c.Load(context.Background())
	if err != nil || !table.Has("OLD") {
		t.Errorf("Expected previous cache intact, got %v / %v", table, err)
	}
}

func TestRebuildCancelled(t *testing.T) {
	store := &memStore{}
	fetcher := &stubFetcher{data: map[string]types.SmaSnapshot{
		"A": {SMA: map[int]float64{50: 1}},
	}}
	c, _ := newTestCache(store, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Rebuild(ctx, []string{"A"}, []int{50}, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if store.replaces != 0 {
		t.Error("Expected nothing written after cancel")
	}
}

func TestRebuildStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &memStore{failWith: boom}
	fetcher := &stubFetcher{data: map[string]types.SmaSnapshot{"A": {SMA: map[int]float64{50: 1}}}}
	c, _ := newTestCache(store, fetcher)

	if _, err := c.Rebuild(context.Background(), []string{"A"}, []int{50}, 0); !errors.Is(err, boom) {
		t.Fatalf("Expected store error, got %v", err)
	}
}

func TestLoadMissingCache(t *testing.T) {
	c, _ := newTestCache(&memStore{}, &stubFetcher{})
	if _, _, err := c.Load(context.Background()); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("Expected ErrCacheNotFound, got %v", err)
	}
}

func TestRepresentativeDate(t *testing.T) {
	recs := []types.SmaRecord{
		{Ticker: "A", CacheDate: "2024-03-08"},
		{Ticker: "B", CacheDate: "2024-03-07"},
		{Ticker: "C", CacheDate: "2024-03-08"},
	}
	if got := RepresentativeDate(recs); got != "2024-03-08" {
		t.Errorf("Expected mode 2024-03-08, got %s", got)
	}

	tie := []types.SmaRecord{{CacheDate: "2024-03-08"}, {CacheDate: "2024-03-07"}}
	if got := RepresentativeDate(tie); got != "2024-03-07" {
		t.Errorf("Expected tie to resolve to 2024-03-07, got %s", got)
	}
	if got := RepresentativeDate(nil); got != "" {
		t.Errorf("Expected empty date for no rows, got %q", got)
	}
}

func TestCheckStaleness(t *testing.T) {
	c, _ := newTestCache(&memStore{}, &stubFetcher{})
	now := time.Date(2024, time.March, 12, 10, 0, 0, 0, c.Clock().Loc)

	exp, stale := c.CheckStaleness(context.Background(), "2024-03-11", now)
	if exp != "2024-03-11" || stale {
		t.Errorf("Expected fresh cache for 2024-03-11, got %s stale=%v", exp, stale)
	}
	if _, stale := c.CheckStaleness(context.Background(), "2024-03-08", now); !stale {
		t.Error("Expected 2024-03-08 to be stale")
	}
	if _, stale := c.CheckStaleness(context.Background(), "", now); stale {
		t.Error("Expected unknown date not to be flagged")
	}
}
