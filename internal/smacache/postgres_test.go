package smacache

import (
	"context"
	"os"
	"testing"

	"ibkr-sma-scanner/internal/types"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SMA_CACHE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SMA_CACHE_TEST_PG_DSN not set")
	}
	s, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("Failed to open postgres: %v", err)
	}
	defer s.Close()
	s.table = "sma_cache_test"
	ctx := context.Background()

	recs := []types.SmaRecord{{Ticker: "KO", SMA50: float64Ptr(60.1), CacheDate: "2024-03-08"}}
	if err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Ticker != "KO" || got[0].CacheDate != "2024-03-08" {
		t.Errorf("Unexpected rows %+v", got)
	}
	_, _ = s.db.Exec("DROP TABLE IF EXISTS sma_cache_test")
}
