package app

import (
	"context"
	"errors"
	"time"

	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/smacache"
)

// RebuildDue reports whether the close for today has passed on a trading day
// and the cache does not yet carry today's date.
func (a *App) RebuildDue(ctx context.Context, now time.Time) bool {
	clock := a.Cache.Clock()
	local := now.In(clock.Loc)
	if !clock.IsTradingDay(local) {
		return false
	}
	expected := clock.ExpectedAsOfDate(now)
	if expected != local.Format("2006-01-02") {
		return false
	}

	_, date, err := a.Cache.Load(ctx)
	if errors.Is(err, smacache.ErrCacheNotFound) {
		return true
	}
	if err != nil {
		logger.Warn(ctx, "Could not read sma cache for rebuild check", "error", err)
		return false
	}
	return date != expected
}

// RunAutoRebuild checks every interval and rebuilds the cache once per
// trading day after the close. It returns when ctx ends.
func (a *App) RunAutoRebuild(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !a.Manager.IsConnected() || !a.RebuildDue(ctx, a.now()) {
				continue
			}
			logger.Info(ctx, "Market closed, rebuilding sma cache")
			n, err := a.RebuildCache(ctx)
			if err != nil {
				logger.ErrorWithErr(ctx, "Scheduled cache rebuild failed", err)
				continue
			}
			logger.Info(ctx, "Scheduled cache rebuild complete", "tickers", n)
		}
	}
}
