package alpaca

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

const (
	checkSymbol     = "SPY"
	historyLookback = 365 * 24 * time.Hour
	// the SDK retries 429 and 5xx responses itself
	retryLimit = 3
	retryDelay = time.Second
)

var (
	ErrNotConnected       = errors.New("alpaca session not connected")
	ErrMissingCredentials = errors.New("missing APCA_API_KEY_ID / APCA_API_SECRET_KEY")
)

type Params struct {
	APIKey    string
	APISecret string
	Feed      marketdata.Feed
	MaxRPS    float64
	// BaseURL overrides the data endpoint.
	BaseURL string
}

// Session serves quotes and daily bars from the Alpaca market data API.
// There is no persistent connection, so no disconnect events are produced.
type Session struct {
	p       Params
	limiter *rate.Limiter
	loc     *time.Location

	mu        sync.RWMutex
	client    *marketdata.Client
	nextReqID atomic.Int64

	events chan types.SessionEvent
}

var _ interfaces.Session = (*Session)(nil)

func New(p Params) *Session {
	if p.Feed == "" {
		p.Feed = marketdata.IEX
	}
	if p.MaxRPS <= 0 {
		p.MaxRPS = 10
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Session{
		p:       p,
		limiter: newRateLimiter(p.MaxRPS),
		loc:     loc,
		events:  make(chan types.SessionEvent, 64),
	}
}

// Connect builds the client and checks it with one latest-trade request.
func (s *Session) Connect(ctx context.Context, id types.SessionIdentity) error {
	if s.p.APIKey == "" || s.p.APISecret == "" {
		return ErrMissingCredentials
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:     s.p.APIKey,
		APISecret:  s.p.APISecret,
		BaseURL:    s.p.BaseURL,
		Feed:       s.p.Feed,
		RetryLimit: retryLimit,
		RetryDelay: retryDelay,
	})

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := client.GetLatestTrade(checkSymbol, marketdata.GetLatestTradeRequest{Feed: s.p.Feed}); err != nil {
		return fmt.Errorf("alpaca check: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	logger.Info(ctx, "Alpaca market data ready", "feed", s.p.Feed, "max_rps", s.p.MaxRPS)
	return nil
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) IsConnected() bool { return s.get() != nil }

func (s *Session) Events() <-chan types.SessionEvent { return s.events }

// Qualify is local: Alpaca addresses stocks by symbol.
func (s *Session) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	return &types.Contract{Symbol: symbol, Exchange: "ALPACA", Currency: "USD"}, nil
}

func (s *Session) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	client := s.get()
	if client == nil {
		return 0, nil, ErrNotConnected
	}

	reqID := s.nextReqID.Add(1)
	quote := types.NewQuote()
	go func() {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		trade, err := client.GetLatestTrade(contract.Symbol, marketdata.GetLatestTradeRequest{Feed: s.p.Feed})
		if err != nil {
			s.emitError(reqID, contract.Symbol, err)
			return
		}
		if trade != nil {
			quote.Set(trade.Price)
		}
	}()
	return reqID, quote, nil
}

func (s *Session) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	client := s.get()
	if client == nil {
		return nil, ErrNotConnected
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := time.Now()
	bars, err := client.GetBars(contract.Symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     end.Add(-historyLookback),
		End:       end,
		Feed:      s.p.Feed,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", contract.Symbol, err)
	}

	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, types.Bar{
			Date:   b.Timestamp.In(s.loc).Format("2006-01-02"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return out, nil
}

func (s *Session) get() *marketdata.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) emitError(reqID int64, symbol string, err error) {
	ev := types.SessionEvent{
		Kind: types.EventError,
		Err:  &types.ErrorEvent{ReqID: reqID, Message: err.Error(), Symbol: symbol},
	}
	select {
	case s.events <- ev:
	default:
	}
}
