package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/types"
)

func sampleResult() types.ScanResult {
	return types.ScanResult{
		RunID: "3f2a9c1e-0000-4000-8000-000000000000",
		Matches: []types.ScanRow{
			{Ticker: "NVDA", Price: 875.31, SMA50: 760, SMA100: 640.5, SMA200: 520.25},
			{Ticker: "AAPL", Price: 105, SMA50: 100, SMA100: 95, SMA200: 90},
		},
		MissingFromCache: []string{"ZZZZ"},
	}
}

func TestWriteScan(t *testing.T) {
	dir := t.TempDir()
	r := NewCSVReporter(dir)
	day := time.Date(2024, time.March, 12, 11, 0, 0, 0, time.UTC)

	path, err := r.WriteScan(day, sampleResult())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, "2024-03-12-3f2a9c1e.csv") {
		t.Errorf("Unexpected path %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "ticker" || rows[1][0] != "NVDA" || rows[2][1] != "105.00" {
		t.Errorf("Unexpected rows %v", rows)
	}

	missing, err := os.ReadFile(missingPath(path))
	if err != nil {
		t.Fatalf("Expected missing sidecar, got %v", err)
	}
	if string(missing) != "ZZZZ\n" {
		t.Errorf("Expected ZZZZ in sidecar, got %q", missing)
	}
}

func TestWriteScanNoMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()
	res.MissingFromCache = nil

	path, err := NewCSVReporter(dir).WriteScan(time.Now(), res)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(missingPath(path)); !os.IsNotExist(err) {
		t.Error("Expected no sidecar without missing tickers")
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "NVDA") || !strings.Contains(out, "875.31") {
		t.Errorf("Expected NVDA row, got:\n%s", out)
	}
	if strings.Index(out, "NVDA") > strings.Index(out, "AAPL") {
		t.Error("Expected rows in result order")
	}
	if !strings.Contains(out, "1 tickers missing from cache") {
		t.Errorf("Expected missing summary, got:\n%s", out)
	}
}

func TestWriteTableEmptyAndLongMissing(t *testing.T) {
	var missing []string
	for i := 0; i < 25; i++ {
		missing = append(missing, fmt.Sprintf("T%02d", i))
	}
	var buf bytes.Buffer
	_ = WriteTable(&buf, types.ScanResult{MissingFromCache: missing, Stale: true, CacheDate: "2024-03-07", ExpectedDate: "2024-03-08"})
	out := buf.String()

	if !strings.Contains(out, "None matched.") {
		t.Errorf("Expected 'None matched.', got:\n%s", out)
	}
	if !strings.Contains(out, "T19") || strings.Contains(out, "T20") {
		t.Errorf("Expected the first 20 missing tickers only, got:\n%s", out)
	}
	if !strings.Contains(out, "(+5 more)") {
		t.Errorf("Expected overflow count, got:\n%s", out)
	}
	if !strings.Contains(out, "expected 2024-03-08") {
		t.Errorf("Expected stale warning, got:\n%s", out)
	}
}

type countingReporter struct {
	calls int
	path  string
	err   error
}

func (c *countingReporter) WriteScan(t time.Time, res types.ScanResult) (string, error) {
	c.calls++
	return c.path, c.err
}

func TestMulti(t *testing.T) {
	primary := &countingReporter{path: "a.csv"}
	failing := &countingReporter{err: fmt.Errorf("kafka down")}
	other := &countingReporter{path: "ignored"}

	path, err := Multi(primary, failing, other).WriteScan(time.Now(), sampleResult())
	if err != nil || path != "a.csv" {
		t.Errorf("Expected primary path without error, got %q (%v)", path, err)
	}
	if primary.calls != 1 || failing.calls != 1 || other.calls != 1 {
		t.Errorf("Expected every reporter called once, got %d/%d/%d", primary.calls, failing.calls, other.calls)
	}
	if Multi(primary) != primary {
		t.Error("Expected Multi with no extras to return the primary")
	}
}

func TestWriteTableNoData(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteTable(&buf, types.ScanResult{NoData: []string{"GONE", "DELISTED"}})
	out := buf.String()
	if !strings.Contains(out, "2 tickers returned no data: GONE, DELISTED") {
		t.Errorf("Expected no-data summary, got:\n%s", out)
	}
	if strings.Contains(out, "missing from cache") {
		t.Errorf("Expected no missing summary, got:\n%s", out)
	}
}
