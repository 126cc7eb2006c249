package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ibkr-sma-scanner/internal/store"
)

func staticConfig(t *testing.T) *store.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SCAN_LOG_DIR", filepath.Join(dir, "logs"))

	universePath := filepath.Join(dir, "tickers.txt")
	if err := os.WriteFile(universePath, []byte("aapl\nMSFT\n\nNVDA\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	body := "universe_file: " + universePath + "\n" +
		"report_dir: " + filepath.Join(dir, "reports") + "\n" +
		"broker:\n  provider: STATIC\n  reconnect_delays_seconds: [1]\n" +
		"cache:\n  path: " + filepath.Join(dir, "cache.db") + "\n  pacing_delay_ms: 1\n" +
		"scan:\n  settle_ms: 20\n  pace_ms: 1\n"
	cfg, err := store.ParseConfig([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRebuildThenScan(t *testing.T) {
	ctx := context.Background()
	cfg := staticConfig(t)

	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer a.Close(ctx)

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Expected static session to connect, got %v", err)
	}

	n, err := a.RebuildCache(ctx)
	if err != nil {
		t.Fatalf("Unexpected rebuild error: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 cached tickers, got %d", n)
	}

	res, err := a.Scan(ctx, []string{"AAPL", "NEWCO"})
	if err != nil {
		t.Fatalf("Unexpected scan error: %v", err)
	}
	if len(res.MissingFromCache) != 1 || res.MissingFromCache[0] != "NEWCO" {
		t.Errorf("Expected NEWCO missing from cache, got %v", res.MissingFromCache)
	}
	if res.CacheDate == "" || res.RunID == "" {
		t.Errorf("Expected run id and cache date, got %+v", res)
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.ReportDir, "scan", "*.csv"))
	if len(matches) != 1 {
		t.Errorf("Expected one scan CSV, got %v", matches)
	}
	logs, _ := filepath.Glob(filepath.Join(os.Getenv("SCAN_LOG_DIR"), "*", "*.txt"))
	if len(logs) != 2 {
		t.Errorf("Expected rebuild and scan logs, got %v", logs)
	}
}

func TestScanWithoutCache(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, staticConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	if _, err := a.Scan(ctx, nil); err == nil {
		t.Fatal("Expected error scanning before the cache is built")
	}
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	cfg := staticConfig(t)
	cfg.LLM.Provider = "OPENAI"
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("Expected error when the LLM key is missing")
	}
}

func TestLiveScanNeedsNoCache(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, staticConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := a.LiveScan(ctx, nil)
	if err != nil {
		t.Fatalf("Unexpected live scan error: %v", err)
	}
	if len(res.NoData) != 0 {
		t.Errorf("Expected every static ticker to return data, got %v", res.NoData)
	}
	if len(res.MissingFromCache) != 0 || res.CacheDate != "" {
		t.Errorf("Expected no cache fields on a live scan, got %+v", res)
	}
	for _, m := range res.Matches {
		if !(m.Price > m.SMA50 && m.Price > m.SMA100 && m.Price > m.SMA200) {
			t.Errorf("Expected %s above all SMAs, got %+v", m.Ticker, m)
		}
	}
}
