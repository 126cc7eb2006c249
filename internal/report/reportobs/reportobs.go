package reportobs

import (
	"context"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/trace"
	"ibkr-sma-scanner/internal/types"
)

type observableReporter struct {
	reporter interfaces.ScanReporter
}

var _ interfaces.ScanReporter = (*observableReporter)(nil)

func Wrap(reporter interfaces.ScanReporter) interfaces.ScanReporter {
	return &observableReporter{reporter: reporter}
}

func (o *observableReporter) WriteScan(t time.Time, res types.ScanResult) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "report.WriteScan")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Writing scan report",
		"run_id", res.RunID,
		"matches", len(res.Matches),
		"missing", len(res.MissingFromCache),
	)

	csvPath, err := o.reporter.WriteScan(t, res)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Scan report failed", err,
			"date", t.Format("2006-01-02"),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Scan report written",
		"date", t.Format("2006-01-02"),
		"csv_path", csvPath,
	)
	return csvPath, nil
}
