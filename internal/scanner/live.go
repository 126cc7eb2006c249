package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/session"
	"ibkr-sma-scanner/internal/ta"
	"ibkr-sma-scanner/internal/types"
)

const liveProgressEvery = 25

var liveWindows = []int{50, 100, 200}

type SmaFetcher interface {
	FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot
}

// LiveScanner scans without the cache: one historical request per ticker
// gives both the SMAs and the last close to compare against them.
type LiveScanner struct {
	fetcher  SmaFetcher
	reporter interfaces.ScanReporter
	pacing   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewLiveScanner sleeps pacing between tickers. reporter may be nil.
func NewLiveScanner(fetcher SmaFetcher, reporter interfaces.ScanReporter, pacing time.Duration) *LiveScanner {
	return &LiveScanner{
		fetcher:  fetcher,
		reporter: reporter,
		pacing:   pacing,
		sleep:    session.Sleep,
		now:      time.Now,
	}
}

// Run fetches every distinct ticker in universe order. Tickers that come back
// without a price or any SMA are listed in NoData. A cancelled context ends
// the run early with the partial result and the context error.
func (l *LiveScanner) Run(ctx context.Context, universe []string) (types.ScanResult, error) {
	runID := uuid.NewString()
	timer := logger.StartOperation(ctx, "scanner.LiveRun", "run_id", runID, "universe", len(universe))
	ctx = timer.GetContext()

	tickers := distinct(universe)
	res := types.ScanResult{RunID: runID, Matches: make([]types.ScanRow, 0)}

	var runErr error
	for i, t := range tickers {
		snap := l.fetcher.FetchSmaAndLastPrice(ctx, t, liveWindows)
		if row, ok := liveMatch(snap); ok {
			logger.Match(ctx, row.Ticker, row.Price, row.SMA50, row.SMA100, row.SMA200)
			res.Matches = append(res.Matches, row)
		} else if !snap.HasPrice || len(snap.SMA) == 0 {
			res.NoData = append(res.NoData, t)
		}

		if (i+1)%liveProgressEvery == 0 {
			logger.Info(ctx, "Live scan progress", "done", i+1, "total", len(tickers))
		}
		if i < len(tickers)-1 {
			if err := l.sleep(ctx, l.pacing); err != nil {
				runErr = err
				break
			}
		}
	}
	sortRows(res.Matches)

	logger.Info(ctx, "Live scan complete",
		"universe", len(tickers),
		"matches", len(res.Matches),
		"no_data", len(res.NoData),
	)

	if l.reporter != nil {
		path, err := l.reporter.WriteScan(l.now(), res)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to write scan report", err, "run_id", runID)
		} else {
			logger.Info(ctx, "Scan report written", "path", path)
		}
	}

	if runErr != nil {
		timer.EndWithError(runErr)
		return res, runErr
	}
	timer.End("matches", len(res.Matches))
	return res, nil
}

func liveMatch(snap types.SmaSnapshot) (types.ScanRow, bool) {
	if !snap.HasPrice {
		return types.ScanRow{}, false
	}
	s50, ok50 := snap.SMA[50]
	s100, ok100 := snap.SMA[100]
	s200, ok200 := snap.SMA[200]
	if !ok50 || !ok100 || !ok200 || !ta.AboveAll(snap.LastPrice, s50, s100, s200) {
		return types.ScanRow{}, false
	}
	return types.ScanRow{
		Ticker: snap.Symbol,
		Price:  ta.Round2(snap.LastPrice),
		SMA50:  s50,
		SMA100: s100,
		SMA200: s200,
	}, true
}

func distinct(universe []string) []string {
	seen := make(map[string]bool, len(universe))
	out := make([]string, 0, len(universe))
	for _, t := range universe {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
