package session

import (
	"context"
	"errors"
	"time"

	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

var (
	ErrConnectionExhausted = errors.New("could not connect to broker after retries")
	ErrNotConnected        = errors.New("broker session not connected")
	errShuttingDown        = errors.New("manager is shutting down")
)

type Severity int

const (
	SeveritySuppress Severity = iota
	SeverityWarn
	SeverityError
)

// Farm-connectivity heartbeats.
var informationalCodes = map[int64]bool{
	2104: true, // market data farm connection is OK
	2106: true, // HMDS data farm connection is OK
	2119: true, // market data farm is connecting
}

var noSecurityDefinitionCodes = map[int64]bool{
	200: true,
	300: true,
}

// Classify maps a broker error code to the severity it is logged at.
func Classify(code int64) Severity {
	switch {
	case informationalCodes[code]:
		return SeveritySuppress
	case noSecurityDefinitionCodes[code]:
		return SeverityWarn
	default:
		return SeverityError
	}
}

// attribute resolves the symbol an error refers to: the correlator first,
// then the contract carried by the event.
func (m *Manager) attribute(ev *types.ErrorEvent) string {
	if sym, ok := m.correlator.Lookup(ev.ReqID); ok {
		return sym
	}
	if ev.Symbol != "" {
		return ev.Symbol
	}
	return UnknownSymbol
}

func (m *Manager) handleError(ctx context.Context, ev *types.ErrorEvent) {
	if ev == nil {
		return
	}
	switch Classify(ev.Code) {
	case SeveritySuppress:
		return
	case SeverityWarn:
		logger.Warn(ctx, "Skipping symbol",
			"symbol", m.attribute(ev),
			"code", ev.Code,
			"req_id", ev.ReqID,
			"message", ev.Message,
		)
	default:
		logger.Error(ctx, "Broker error",
			"code", ev.Code,
			"req_id", ev.ReqID,
			"symbol", m.attribute(ev),
			"message", ev.Message,
		)
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
