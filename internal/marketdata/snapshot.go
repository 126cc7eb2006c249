package marketdata

import (
	"context"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/session"
	"ibkr-sma-scanner/internal/types"
)

const DefaultBatchPause = 100 * time.Millisecond

// SnapshotFetcher harvests one-shot quotes in batches. Snapshot requests end
// on their own, so nothing is cancelled; a fixed settle window is the only
// synchronization with the broker's asynchronous delivery.
type SnapshotFetcher struct {
	session    interfaces.Session
	correlator *session.Correlator
	pause      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewSnapshotFetcher(s interfaces.Session, c *session.Correlator, pause time.Duration) *SnapshotFetcher {
	if c == nil {
		c = session.NewCorrelator()
	}
	return &SnapshotFetcher{
		session:    s,
		correlator: c,
		pause:      pause,
		sleep:      session.Sleep,
	}
}

type pendingQuote struct {
	symbol string
	reqID  int64
	quote  *types.Quote
}

// FetchSnapshots returns the prices that arrived within the settle window of
// each batch. Symbols that fail to qualify, fail to request, or return no
// usable price are left out.
func (f *SnapshotFetcher) FetchSnapshots(ctx context.Context, symbols []string, batchSize int, settle time.Duration) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices
	}
	if batchSize <= 0 {
		batchSize = len(symbols)
	}

	for start := 0; start < len(symbols); start += batchSize {
		end := start + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		pending := f.issueBatch(ctx, symbols[start:end])

		if len(pending) > 0 {
			if err := f.sleep(ctx, settle); err != nil {
				return prices
			}
		}

		for _, p := range pending {
			price, ok := p.quote.MarketPrice()
			f.correlator.Forget(p.reqID)
			if !ok {
				logger.Warn(ctx, "No price for symbol (empty snapshot)", "symbol", p.symbol)
				continue
			}
			prices[p.symbol] = price
		}

		if err := f.sleep(ctx, f.pause); err != nil {
			return prices
		}
	}

	logger.Debug(ctx, "Snapshot fetch complete", "requested", len(symbols), "priced", len(prices))
	return prices
}

func (f *SnapshotFetcher) issueBatch(ctx context.Context, batch []string) []pendingQuote {
	pending := make([]pendingQuote, 0, len(batch))
	for _, sym := range batch {
		contract, err := f.session.Qualify(ctx, sym)
		if err != nil {
			logger.Warn(ctx, "Could not qualify contract", "symbol", sym, "error", err)
			continue
		}
		reqID, quote, err := f.session.RequestSnapshot(ctx, contract)
		if err != nil {
			logger.Warn(ctx, "Could not request snapshot", "symbol", sym, "error", err)
			continue
		}
		f.correlator.Put(reqID, sym)
		pending = append(pending, pendingQuote{symbol: sym, reqID: reqID, quote: quote})
	}
	return pending
}

// FetchPrice fetches a single live price.
func (f *SnapshotFetcher) FetchPrice(ctx context.Context, symbol string, settle time.Duration) (float64, bool) {
	prices := f.FetchSnapshots(ctx, []string{symbol}, 1, settle)
	p, ok := prices[symbol]
	return p, ok
}
