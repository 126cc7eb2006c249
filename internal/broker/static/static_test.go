package static

import (
	"context"
	"errors"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/types"
)

func TestBarsDeterministicAndOrdered(t *testing.T) {
	anchor := time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)
	a, b := New(anchor), New(anchor)
	ctx := context.Background()
	_ = a.Connect(ctx, types.SessionIdentity{})
	_ = b.Connect(ctx, types.SessionIdentity{})

	c, err := a.Qualify(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	barsA, _ := a.RequestHistoricalBars(ctx, c, types.DailyYearRTH)
	barsB, _ := b.RequestHistoricalBars(ctx, c, types.DailyYearRTH)

	if len(barsA) != tradingDaysPerYear {
		t.Fatalf("Expected %d bars, got %d", tradingDaysPerYear, len(barsA))
	}
	if barsA[len(barsA)-1].Date != "2024-03-08" {
		t.Errorf("Expected last bar on the anchor date, got %s", barsA[len(barsA)-1].Date)
	}
	for i := 1; i < len(barsA); i++ {
		if barsA[i].Date <= barsA[i-1].Date {
			t.Fatalf("Expected ascending dates, got %s after %s", barsA[i].Date, barsA[i-1].Date)
		}
		if barsA[i].Close != barsB[i].Close {
			t.Fatalf("Expected identical series, bar %d differs", i)
		}
	}

	other, _ := a.Qualify(ctx, "MSFT")
	barsM, _ := a.RequestHistoricalBars(ctx, other, types.DailyYearRTH)
	if barsM[0].Close == barsA[0].Close {
		t.Error("Expected different symbols to get different series")
	}
}

func TestSnapshotNearLastClose(t *testing.T) {
	s := New(time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	_ = s.Connect(ctx, types.SessionIdentity{})

	c, _ := s.Qualify(ctx, "NVDA")
	bars, _ := s.RequestHistoricalBars(ctx, c, types.DailyYearRTH)
	_, q, err := s.RequestSnapshot(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := q.MarketPrice()
	last := bars[len(bars)-1].Close
	if !ok || p < last*0.97 || p > last*1.03 {
		t.Errorf("Expected price within 3%% of %.2f, got %.2f (%v)", last, p, ok)
	}
}

func TestDisconnected(t *testing.T) {
	s := New(time.Time{})
	if _, err := s.Qualify(context.Background(), "A"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}
