package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/pretty"

	"ibkr-sma-scanner/internal/app"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/report"
	"ibkr-sma-scanner/internal/smacache"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	tickers := flag.String("tickers", "", "Comma-separated tickers (default: universe file)")
	asJSON := flag.Bool("json", false, "Print the scan result as JSON")
	live := flag.Bool("live", false, "Compute SMAs from fresh history instead of the cache (slow)")
	flag.Parse()

	if err := app.InitSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize scanner", err)
		os.Exit(1)
	}

	// Ctrl+C, kill and Ctrl+Z all release the broker session before exiting.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP)
	go func() {
		sig := <-sigc
		logger.Info(ctx, "Received signal, disconnecting", "signal", sig.String())
		cancel()
	}()

	code := run(ctx, a, parseTickers(*tickers), *asJSON, *live)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	a.Close(shutdownCtx)
	app.Shutdown(shutdownCtx)
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, tickers []string, asJSON, live bool) int {
	app.CompressLogs(ctx)

	if err := a.Connect(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Could not connect to broker", err)
		return 1
	}

	scan := a.Scan
	if live {
		scan = a.LiveScan
	}
	res, err := scan(ctx, tickers)
	if err != nil {
		logger.ErrorWithErr(ctx, "Scan failed", err)
		if hint := scanErrorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return 1
	}

	if asJSON {
		data, err := json.Marshal(res)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to encode scan results", err)
			return 1
		}
		os.Stdout.Write(pretty.Pretty(data))
		return 0
	}

	if err := report.WriteTable(os.Stdout, res); err != nil {
		logger.ErrorWithErr(ctx, "Failed to print scan results", err)
		return 1
	}
	return 0
}

// scanErrorHint is a next step for the user, or "" when there is none.
func scanErrorHint(err error) string {
	if errors.Is(err, smacache.ErrCacheNotFound) {
		return "SMA cache not available. Run buildcache after the close first."
	}
	return ""
}

func parseTickers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
