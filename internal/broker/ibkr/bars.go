package ibkr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseBarDate normalizes the date formats TWS returns for bars to
// 2006-01-02: "20240308", "20240308 15:30:00 US/Eastern" or unix seconds.
func ParseBarDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty bar date")
	}

	day := raw
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		day = raw[:i]
	}
	if len(day) == 8 {
		t, err := time.Parse("20060102", day)
		if err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	if t, err := time.Parse("2006-01-02", day); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && len(raw) > 8 {
		return time.Unix(secs, 0).UTC().Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("unrecognized bar date %q", raw)
}
