package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/ta"
	"ibkr-sma-scanner/internal/types"
)

var DefaultWindows = []int{50, 100, 200}

type HistoricalFetcher struct {
	session interfaces.Session
	timeout time.Duration
}

// NewHistoricalFetcher bounds each historical request by timeout (zero: no bound).
func NewHistoricalFetcher(s interfaces.Session, timeout time.Duration) *HistoricalFetcher {
	return &HistoricalFetcher{session: s, timeout: timeout}
}

// FetchSmaAndLastPrice pulls a year of daily RTH bars and computes the SMA for
// every window the history covers. Any failure yields an empty snapshot.
func (f *HistoricalFetcher) FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) (snap types.SmaSnapshot) {
	snap = emptySnapshot(symbol)
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn(ctx, "Historical fetch panicked", "symbol", symbol, "panic", fmt.Sprint(r))
			snap = emptySnapshot(symbol)
		}
	}()

	contract, err := f.session.Qualify(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "Could not qualify contract", "symbol", symbol, "error", err)
		return snap
	}

	reqCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	bars, err := f.session.RequestHistoricalBars(reqCtx, contract, types.DailyYearRTH)
	if err != nil {
		logger.Warn(ctx, "Historical bars request failed", "symbol", symbol, "error", err)
		return snap
	}
	if len(bars) == 0 {
		logger.Warn(ctx, "No historical bars", "symbol", symbol)
		return snap
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	last := bars[len(bars)-1]
	snap.LastPrice = last.Close
	snap.HasPrice = true
	snap.LastBarDate = last.Date
	snap.SMA = ta.SMAs(closes, windows)
	return snap
}

func emptySnapshot(symbol string) types.SmaSnapshot {
	return types.SmaSnapshot{Symbol: symbol, SMA: map[int]float64{}}
}
