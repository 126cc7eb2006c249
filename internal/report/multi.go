package report

import (
	"context"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

type multiReporter struct {
	primary interfaces.ScanReporter
	extra   []interfaces.ScanReporter
}

// Multi writes through primary and then every extra reporter. Only the
// primary's path and error are returned; extra failures are logged.
func Multi(primary interfaces.ScanReporter, extra ...interfaces.ScanReporter) interfaces.ScanReporter {
	if len(extra) == 0 {
		return primary
	}
	return &multiReporter{primary: primary, extra: extra}
}

func (m *multiReporter) WriteScan(t time.Time, res types.ScanResult) (string, error) {
	path, err := m.primary.WriteScan(t, res)
	for _, r := range m.extra {
		if _, xerr := r.WriteScan(t, res); xerr != nil {
			logger.Warn(context.Background(), "Secondary scan reporter failed", "run_id", res.RunID, "error", xerr)
		}
	}
	return path, err
}
