package scanlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/types"
)

func TestAppendScan(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCAN_LOG_DIR", dir)

	// 15:00 UTC is 11:00 EDT on 2024-06-03
	at := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	res := types.ScanResult{
		RunID:            "abc",
		Matches:          []types.ScanRow{{Ticker: "AAPL"}, {Ticker: "NVDA"}},
		MissingFromCache: []string{"ZZZZ"},
		CacheDate:        "2024-05-31",
	}
	if err := AppendScan(at, EntryFor(3, res)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := AppendScan(at, EntryFor(3, res)); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "scans", "2024-06-03.txt"))
	if err != nil {
		t.Fatalf("Expected daily scan log, got %v", err)
	}
	defer f.Close()

	var lines []ScanEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e ScanEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatal(err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	e := lines[0]
	if e.Time != "2024-06-03 11:00:00" || e.Matched != 2 || e.Missing != 1 || e.Universe != 3 {
		t.Errorf("Unexpected entry %+v", e)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCAN_LOG_DIR", dir)

	old := time.Now().AddDate(0, 0, -10)
	if err := AppendRebuild(old, RebuildEntry{AsOf: "2024-06-03", Written: 5}); err != nil {
		t.Fatal(err)
	}
	p := rebuildsFilepath(old)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatal(err)
	}
	if err := AppendScan(time.Now(), ScanEntry{RunID: "fresh"}); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(7); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("Expected %s removed after compression", p)
	}
	gz, err := os.Open(p + ".gz")
	if err != nil {
		t.Fatalf("Expected gzip file, got %v", err)
	}
	defer gz.Close()
	zr, err := gzip.NewReader(gz)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(zr)
	var e RebuildEntry
	if err := json.Unmarshal(body, &e); err != nil || e.Written != 5 {
		t.Errorf("Expected rebuild entry in gzip, got %+v (%v)", e, err)
	}
	if _, err := os.Stat(scansFilepath(time.Now())); err != nil {
		t.Errorf("Expected fresh log untouched, got %v", err)
	}
}
