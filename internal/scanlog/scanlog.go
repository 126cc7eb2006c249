package scanlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ibkr-sma-scanner/internal/smacache"
	"ibkr-sma-scanner/internal/types"
)

var mu sync.Mutex

// ScanEntry is one JSON line per scan run.
type ScanEntry struct {
	Time, RunID, CacheDate, ExpectedDate string
	Stale                                bool
	Universe, Matched, Missing           int
	Tickers                              []string `json:"tickers,omitempty"`
}

type RebuildEntry struct {
	Time, AsOf string
	Universe   int
	Written    int
	Err        string `json:"error,omitempty"`
}

func logDir() string {
	if v := os.Getenv("SCAN_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func eastern(t time.Time) time.Time {
	return t.In(smacache.DefaultMarketClock().Loc)
}

func scansFilepath(t time.Time) string {
	return filepath.Join(logDir(), "scans", eastern(t).Format("2006-01-02")+".txt")
}

func rebuildsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "rebuilds", eastern(t).Format("2006-01-02")+".txt")
}

// EntryFor summarizes a scan result.
func EntryFor(universe int, res types.ScanResult) ScanEntry {
	tickers := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		tickers[i] = m.Ticker
	}
	return ScanEntry{
		RunID:        res.RunID,
		CacheDate:    res.CacheDate,
		ExpectedDate: res.ExpectedDate,
		Stale:        res.Stale,
		Universe:     universe,
		Matched:      len(res.Matches),
		Missing:      len(res.MissingFromCache),
		Tickers:      tickers,
	}
}

func AppendScan(t time.Time, e ScanEntry) error {
	e.Time = eastern(t).Format("2006-01-02 15:04:05")
	return appendLine(scansFilepath(t), e)
}

func AppendRebuild(t time.Time, e RebuildEntry) error {
	e.Time = eastern(t).Format("2006-01-02 15:04:05")
	return appendLine(rebuildsFilepath(t), e)
}

func appendLine(p string, v any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt logs last modified more than retentionDays ago.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed on an earlier pass
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
