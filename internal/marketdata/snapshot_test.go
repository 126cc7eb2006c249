package marketdata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/session"
	"ibkr-sma-scanner/internal/testutils"
	"ibkr-sma-scanner/internal/types"
)

func connectedFake(t *testing.T) *testutils.FakeSession {
	t.Helper()
	fs := testutils.NewFakeSession()
	if err := fs.Connect(context.Background(), types.SessionIdentity{Host: "127.0.0.1", Port: 7497, ClientID: 1}); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestFetchSnapshotsBatches(t *testing.T) {
	fs := connectedFake(t)
	symbols := []string{"AAPL", "MSFT", "NVDA", "AMD", "TSLA"}
	for i, s := range symbols {
		fs.SetPrice(s, float64(100+i))
	}

	corr := session.NewCorrelator()
	f := NewSnapshotFetcher(fs, corr, 0)
	var settles []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		settles = append(settles, d)
		time.Sleep(d)
		return nil
	}

	prices := f.FetchSnapshots(context.Background(), symbols, 2, 20*time.Millisecond)
	if len(prices) != 5 {
		t.Fatalf("Expected 5 prices, got %d: %v", len(prices), prices)
	}
	if prices["TSLA"] != 104 {
		t.Errorf("Expected TSLA 104, got %v", prices["TSLA"])
	}

	order := fs.SnapshotOrder()
	for i, s := range symbols {
		if order[i] != s {
			t.Errorf("Expected request %d for %s, got %s", i, s, order[i])
		}
	}

	// three batches: settle + pause each
	if len(settles) != 6 {
		t.Errorf("Expected 6 waits for 3 batches, got %d", len(settles))
	}
	if corr.Len() != 0 {
		t.Errorf("Expected harvested requests to be forgotten, got %d", corr.Len())
	}
}

func TestFetchSnapshotsExcludesFailures(t *testing.T) {
	fs := connectedFake(t)
	fs.SetPrice("AAPL", 190.5)
	fs.SetPrice("NAN", math.NaN())
	fs.SetPrice("ZERO", 0)
	fs.SetPrice("BAD", 10)
	fs.FailQualify("BAD", errors.New("no security definition"))
	fs.SetPrice("REJ", 10)
	fs.FailSnapshot("REJ", errors.New("market data line limit"))

	f := NewSnapshotFetcher(fs, nil, 0)
	prices := f.FetchSnapshots(context.Background(), []string{"AAPL", "NAN", "ZERO", "BAD", "REJ", "NOPRICE"}, 10, 20*time.Millisecond)

	if len(prices) != 1 {
		t.Fatalf("Expected only AAPL, got %v", prices)
	}
	if prices["AAPL"] != 190.5 {
		t.Errorf("Expected AAPL 190.5, got %v", prices["AAPL"])
	}
}

func TestFetchSnapshotsLateQuoteMissed(t *testing.T) {
	fs := connectedFake(t)
	fs.SetPrice("SLOW", 12)
	fs.SnapshotLatency = 200 * time.Millisecond

	f := NewSnapshotFetcher(fs, nil, 0)
	prices := f.FetchSnapshots(context.Background(), []string{"SLOW"}, 1, 10*time.Millisecond)
	if _, ok := prices["SLOW"]; ok {
		t.Error("Expected quote arriving after the settle window to be excluded")
	}
}

func TestFetchSnapshotsDisconnected(t *testing.T) {
	fs := testutils.NewFakeSession()
	fs.SetPrice("AAPL", 1)

	f := NewSnapshotFetcher(fs, nil, 0)
	prices := f.FetchSnapshots(context.Background(), []string{"AAPL"}, 5, time.Millisecond)
	if len(prices) != 0 {
		t.Errorf("Expected no prices while disconnected, got %v", prices)
	}
}

func TestFetchSnapshotsCancelled(t *testing.T) {
	fs := connectedFake(t)
	fs.SetPrice("AAPL", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewSnapshotFetcher(fs, nil, 0)
	prices := f.FetchSnapshots(ctx, []string{"AAPL"}, 5, time.Second)
	if len(prices) != 0 {
		t.Errorf("Expected no prices after cancellation, got %v", prices)
	}
}

func TestFetchPrice(t *testing.T) {
	fs := connectedFake(t)
	fs.SetPrice("SPY", 512.25)

	f := NewSnapshotFetcher(fs, nil, 0)
	p, ok := f.FetchPrice(context.Background(), "SPY", 10*time.Millisecond)
	if !ok || p != 512.25 {
		t.Errorf("Expected 512.25, got %v (ok=%v)", p, ok)
	}
}
