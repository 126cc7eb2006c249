package brokerobs

import (
	"context"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/trace"
	"ibkr-sma-scanner/internal/types"
)

// observableSession wraps a Session with logging and tracing.
type observableSession struct {
	session  interfaces.Session
	provider string
}

var _ interfaces.Session = (*observableSession)(nil)

// Wrap wraps a broker session with observability middleware.
func Wrap(session interfaces.Session, provider string) interfaces.Session {
	return &observableSession{session: session, provider: provider}
}

func (o *observableSession) Connect(ctx context.Context, id types.SessionIdentity) error {
	ctx, span := trace.StartSpan(ctx, "broker.Connect")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Connecting broker session", "provider", o.provider, "identity", id.String())

	if err := o.session.Connect(ctx, id); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker connect failed", err, "provider", o.provider, "identity", id.String())
		return err
	}

	logger.DebugSkip(ctx, 1, "Broker session connected", "provider", o.provider, "identity", id.String())
	return nil
}

func (o *observableSession) Disconnect() error {
	ctx, span := trace.StartSpan(context.Background(), "broker.Disconnect")
	defer span.End()

	if err := o.session.Disconnect(); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker disconnect failed", err, "provider", o.provider)
		return err
	}
	logger.DebugSkip(ctx, 1, "Broker session closed", "provider", o.provider)
	return nil
}

func (o *observableSession) IsConnected() bool { return o.session.IsConnected() }

func (o *observableSession) Events() <-chan types.SessionEvent { return o.session.Events() }

func (o *observableSession) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Qualify")
	defer span.End()

	c, err := o.session.Qualify(ctx, symbol)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Contract not qualified", "symbol", symbol, "error", err)
		return nil, err
	}
	return c, nil
}

func (o *observableSession) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.RequestSnapshot")
	defer span.End()

	reqID, q, err := o.session.RequestSnapshot(ctx, contract)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Snapshot request failed", "symbol", contract.Symbol, "error", err)
		return 0, nil, err
	}
	logger.DebugSkip(ctx, 1, "Snapshot requested", "symbol", contract.Symbol, "req_id", reqID)
	return reqID, q, nil
}

func (o *observableSession) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "broker.RequestHistoricalBars")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching historical bars", "symbol", contract.Symbol, "duration", q.Duration, "bar_size", q.BarSize)

	bars, err := o.session.RequestHistoricalBars(ctx, contract, q)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Historical request failed", "symbol", contract.Symbol, "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Historical bars fetched", "symbol", contract.Symbol, "count", len(bars))
	return bars, nil
}
