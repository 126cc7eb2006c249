package interfaces

import (
	"time"

	"ibkr-sma-scanner/internal/types"
)

type ScanReporter interface {
	// WriteScan persists a scan result and returns the CSV path.
	WriteScan(t time.Time, res types.ScanResult) (csvPath string, err error)
}
