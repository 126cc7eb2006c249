package universe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Warrants, units and rights share the common stock's root with one of these
// suffixes.
var badSuffixes = []string{"W", "WS", "WT", "U", "UN", "R"}

// IsValidEquitySymbol is a rough filter for common stock symbols.
func IsValidEquitySymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, s := range badSuffixes {
		if strings.HasSuffix(symbol, s) {
			return false
		}
	}
	if strings.ContainsAny(symbol, "^.-") {
		return false
	}
	for _, r := range symbol {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Clean keeps the valid symbols in order.
func Clean(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if IsValidEquitySymbol(t) {
			out = append(out, t)
		}
	}
	return out
}

// Write stores tickers one per line.
func Write(path string, tickers []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(strings.Join(tickers, "\n")), 0o644); err != nil {
		return fmt.Errorf("write universe %s: %w", path, err)
	}
	return nil
}
