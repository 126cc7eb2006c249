package interfaces

import (
	"context"

	"ibkr-sma-scanner/internal/types"
)

// Session is a broker connection. Implementations deliver disconnect notices
// and asynchronous errors on Events; the channel is never closed while the
// session is in use.
type Session interface {
	Connect(ctx context.Context, id types.SessionIdentity) error
	Disconnect() error
	IsConnected() bool
	Qualify(ctx context.Context, symbol string) (*types.Contract, error)
	// RequestSnapshot issues a one-shot quote request and returns immediately.
	// The returned Quote is filled asynchronously.
	RequestSnapshot(ctx context.Context, contract *types.Contract) (reqID int64, quote *types.Quote, err error)
	RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error)
	Events() <-chan types.SessionEvent
}
