package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ibkr-sma-scanner/internal/app"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/smacache"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	force := flag.Bool("force", false, "Rebuild even while the market is open")
	flag.Parse()

	if err := app.InitSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize cache builder", err)
		os.Exit(1)
	}

	code := run(ctx, a, *force)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	a.Close(shutdownCtx)
	app.Shutdown(shutdownCtx)
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, force bool) int {
	clock := a.Cache.Clock()
	now := time.Now()
	if clock.IsOpen(now) {
		// intraday bars would leave a partial session in the averages
		logger.Warn(ctx, "Market is open; the cache should be built after the close",
			"expected_as_of", clock.ExpectedAsOfDate(now))
		if !force {
			return 2
		}
	}

	if err := a.Connect(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Could not connect to broker", err)
		return 1
	}

	n, err := a.RebuildCache(ctx)
	if errors.Is(err, smacache.ErrEmptyCache) {
		logger.Error(ctx, "No SMA rows computed; previous cache left in place")
		return 1
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Cache rebuild failed", err)
		return 1
	}

	fmt.Printf("Cached %d tickers (as of %s)\n", n, clock.ExpectedAsOfDate(time.Now()))
	return 0
}
