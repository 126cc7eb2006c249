package scanner

import (
	"context"
	"reflect"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/types"
)

type stubHistory struct {
	snaps map[string]types.SmaSnapshot
	asked []string
}

func (s *stubHistory) FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot {
	s.asked = append(s.asked, symbol)
	if snap, ok := s.snaps[symbol]; ok {
		return snap
	}
	return types.SmaSnapshot{Symbol: symbol, SMA: map[int]float64{}}
}

func snapshot(sym string, price float64, sma map[int]float64) types.SmaSnapshot {
	return types.SmaSnapshot{Symbol: sym, LastPrice: price, HasPrice: true, SMA: sma, LastBarDate: "2024-03-08"}
}

func TestLiveScan(t *testing.T) {
	hist := &stubHistory{snaps: map[string]types.SmaSnapshot{
		"AAPL": snapshot("AAPL", 105.004, map[int]float64{50: 100, 100: 95, 200: 90}),
		"NVDA": snapshot("NVDA", 900, map[int]float64{50: 800, 100: 700, 200: 600}),
		"MSFT": snapshot("MSFT", 150, map[int]float64{50: 200, 100: 210, 200: 220}),
		// too little history for SMA200
		"NEWCO": snapshot("NEWCO", 50, map[int]float64{50: 40}),
	}}
	rep := &stubReporter{}
	var sleeps []time.Duration
	l := NewLiveScanner(hist, rep, 5*time.Millisecond)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	res, err := l.Run(context.Background(), []string{"AAPL", "MSFT", "NEWCO", "GONE", "NVDA", "AAPL"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []types.ScanRow{
		{Ticker: "NVDA", Price: 900, SMA50: 800, SMA100: 700, SMA200: 600},
		{Ticker: "AAPL", Price: 105, SMA50: 100, SMA100: 95, SMA200: 90},
	}
	if !reflect.DeepEqual(res.Matches, want) {
		t.Errorf("Expected %+v, got %+v", want, res.Matches)
	}
	if !reflect.DeepEqual(res.NoData, []string{"GONE"}) {
		t.Errorf("Expected no data for [GONE], got %v", res.NoData)
	}
	if !reflect.DeepEqual(hist.asked, []string{"AAPL", "MSFT", "NEWCO", "GONE", "NVDA"}) {
		t.Errorf("Expected one request per distinct ticker, got %v", hist.asked)
	}
	if len(sleeps) != 4 {
		t.Errorf("Expected 4 pacing sleeps between 5 tickers, got %d", len(sleeps))
	}
	if res.RunID == "" {
		t.Error("Expected a run id")
	}
	if len(rep.results) != 1 {
		t.Errorf("Expected one report, got %d", len(rep.results))
	}
}

func TestLiveScanCancelled(t *testing.T) {
	hist := &stubHistory{}
	l := NewLiveScanner(hist, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	l.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := l.Run(ctx, []string{"AAPL", "MSFT", "NVDA"})
	if err == nil {
		t.Fatal("Expected the context error")
	}
	if len(hist.asked) != 1 {
		t.Errorf("Expected the run to stop after the first ticker, got %v", hist.asked)
	}
	if !reflect.DeepEqual(res.NoData, []string{"AAPL"}) {
		t.Errorf("Expected partial result with AAPL, got %v", res.NoData)
	}
}
