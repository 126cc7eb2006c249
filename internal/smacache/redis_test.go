package smacache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ibkr-sma-scanner/internal/types"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test_sma")
	defer s.Close()
	ctx := context.Background()

	if _, err := s.LoadAll(ctx); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("Expected ErrCacheNotFound, got %v", err)
	}

	recs := []types.SmaRecord{
		{Ticker: "TSLA", SMA50: float64Ptr(200), CacheDate: "2024-03-08"},
		{Ticker: "AMD", SMA50: float64Ptr(170), SMA100: float64Ptr(150), SMA200: float64Ptr(130), CacheDate: "2024-03-08"},
	}
	if err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Ticker != "AMD" || got[1].SMA100 != nil {
		t.Errorf("Unexpected rows %+v", got)
	}

	if err := s.Replace(ctx, recs[:1]); err != nil {
		t.Fatal(err)
	}
	keys, err := mr.HKeys("test_sma")
	if err != nil || len(keys) != 1 {
		t.Errorf("Expected replace to leave 1 field, got %v (%v)", keys, err)
	}
}

func TestRedisLegacyRecordWithoutDate(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet("sma_cache", "IBM", `{"SMA50":190.1}`)

	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer s.Close()

	got, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Ticker != "IBM" || got[0].CacheDate != "" {
		t.Errorf("Unexpected rows %+v", got)
	}
}
