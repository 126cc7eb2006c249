package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/types"
)

var csvHeaders = []string{"ticker", "price", "SMA50", "SMA100", "SMA200"}

type csvReporter struct {
	dir string
}

var _ interfaces.ScanReporter = (*csvReporter)(nil)

// NewCSVReporter writes scan files under <dir>/scan.
func NewCSVReporter(dir string) interfaces.ScanReporter {
	if dir == "" {
		dir = "reports"
	}
	return &csvReporter{dir: dir}
}

func scanCSVPath(dir string, t time.Time, runID string) string {
	name := t.Format("2006-01-02")
	if runID != "" {
		name += "-" + shortID(runID)
	}
	return filepath.Join(dir, "scan", name+".csv")
}

func missingPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, ".csv") + ".missing.txt"
}

// WriteScan writes the matches as CSV and, when tickers were missing from the
// cache, a sidecar listing them one per line.
func (r *csvReporter) WriteScan(t time.Time, res types.ScanResult) (string, error) {
	outPath := scanCSVPath(r.dir, t, res.RunID)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeaders); err != nil {
		return "", err
	}
	for _, m := range res.Matches {
		rec := []string{
			m.Ticker,
			fmt.Sprintf("%.2f", m.Price),
			fmt.Sprintf("%.2f", m.SMA50),
			fmt.Sprintf("%.2f", m.SMA100),
			fmt.Sprintf("%.2f", m.SMA200),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	if len(res.MissingFromCache) > 0 {
		body := strings.Join(res.MissingFromCache, "\n") + "\n"
		if err := os.WriteFile(missingPath(outPath), []byte(body), 0o644); err != nil {
			return "", err
		}
	}
	return outPath, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
