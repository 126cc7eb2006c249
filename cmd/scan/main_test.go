package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"

	"ibkr-sma-scanner/internal/smacache"
)

func TestScanErrorHint(t *testing.T) {
	missingCache := fmt.Errorf("load sma cache: %w", smacache.ErrCacheNotFound)
	if scanErrorHint(missingCache) == "" {
		t.Error("Expected a buildcache hint for a missing cache")
	}

	missingUniverse := fmt.Errorf("open universe tickers.txt: %w", os.ErrNotExist)
	if hint := scanErrorHint(missingUniverse); hint != "" {
		t.Errorf("Expected no hint for a missing universe file, got %q", hint)
	}
	if hint := scanErrorHint(errors.New("broker gone")); hint != "" {
		t.Errorf("Expected no hint, got %q", hint)
	}
}

func TestParseTickers(t *testing.T) {
	got := parseTickers(" aapl, ,msft ,NVDA")
	if want := []string{"AAPL", "MSFT", "NVDA"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if parseTickers("") != nil {
		t.Error("Expected nil for an empty flag")
	}
}
