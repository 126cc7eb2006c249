package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/universe"
)

func main() {
	in := flag.String("in", "all-tickers.txt", "Raw ticker list")
	out := flag.String("out", "clean-tickers.txt", "Cleaned universe file")
	pageURL := flag.String("url", "", "Scrape tickers from an HTML table instead of -in")
	selector := flag.String("selector", universe.DefaultRowSelector, "CSS selector for table rows")
	column := flag.Int("column", 0, "Zero-based column holding the symbol")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	var raw []string
	var err error
	if *pageURL != "" {
		raw, err = universe.NewScraper(30*time.Second).Scrape(ctx, *pageURL, *selector, *column)
	} else {
		raw, err = universe.Load(*in)
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to read tickers", err)
		os.Exit(1)
	}

	clean := universe.Clean(raw)
	if err := universe.Write(*out, clean); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write universe", err)
		os.Exit(1)
	}
	fmt.Printf("Cleaned %d tickers (of %d) written to %s\n", len(clean), len(raw), *out)
}
