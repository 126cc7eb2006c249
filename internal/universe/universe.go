package universe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads a ticker list from path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open universe %s: %w", path, err)
	}
	defer f.Close()

	tickers, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", path, err)
	}
	return tickers, nil
}

// Parse reads one ticker per line, uppercased and trimmed. Blank lines are
// skipped; duplicates are kept.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		t := strings.ToUpper(strings.TrimSpace(sc.Text()))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out, sc.Err()
}
