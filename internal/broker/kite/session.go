package kite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

const (
	// noInstrumentCode mirrors the TWS "no security definition" code so the
	// session manager treats unknown symbols as warnings.
	noInstrumentCode = 200
	historyLookback  = 365 * 24 * time.Hour
)

var (
	ErrNotConnected       = errors.New("kite session not connected")
	ErrMissingCredentials = errors.New("missing KITE_API_KEY / KITE_ACCESS_TOKEN")
)

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

// Session reads quotes and daily history over Kite Connect REST. The ticker
// websocket carries no data here; its close callback is the disconnect signal.
type Session struct {
	p      Params
	mapper *instrumentMapper

	mu     sync.RWMutex
	kc     *kiteconnect.Client
	ticker *kiteticker.Ticker
	gen    uint64

	connected   atomic.Bool
	intentional atomic.Bool
	nextReqID   atomic.Int64

	events chan types.SessionEvent
}

var _ interfaces.Session = (*Session)(nil)

func New(p Params) *Session {
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	return &Session{
		p:      p,
		mapper: newInstrumentMapper(),
		events: make(chan types.SessionEvent, 256),
	}
}

// Connect validates the access token, loads the exchange instrument list and
// opens the ticker. Kite has no client ids; the identity is only logged.
func (s *Session) Connect(ctx context.Context, id types.SessionIdentity) error {
	if s.p.APIKey == "" || s.p.AccessToken == "" {
		return ErrMissingCredentials
	}

	kc := kiteconnect.New(s.p.APIKey)
	kc.SetAccessToken(s.p.AccessToken)

	if err := await(ctx, func() error {
		profile, err := kc.GetUserProfile()
		if err != nil {
			return err
		}
		logger.Debug(ctx, "Kite profile loaded", "user_id", profile.UserID)
		return nil
	}); err != nil {
		return fmt.Errorf("kite profile: %w", err)
	}

	if err := await(ctx, func() error {
		list, err := kc.GetInstrumentsByExchange(s.p.Exchange)
		if err != nil {
			return err
		}
		n := s.mapper.load(list)
		logger.Info(ctx, "Kite instruments loaded", "exchange", s.p.Exchange, "count", n)
		return nil
	}); err != nil {
		return fmt.Errorf("kite instruments: %w", err)
	}

	ticker := kiteticker.New(s.p.APIKey, s.p.AccessToken)
	ticker.SetAutoReconnect(false)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.kc = kc
	s.ticker = ticker
	s.mu.Unlock()
	s.intentional.Store(false)

	up := make(chan struct{})
	s.setupEventHandlers(ticker, gen, up)
	go ticker.Serve()

	select {
	case <-up:
		return nil
	case <-ctx.Done():
		s.intentional.Store(true)
		ticker.Stop()
		return fmt.Errorf("kite ticker: %w", ctx.Err())
	}
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	ticker := s.ticker
	s.ticker = nil
	s.kc = nil
	s.mu.Unlock()

	s.intentional.Store(true)
	s.connected.Store(false)
	if ticker != nil {
		ticker.Stop()
	}
	return nil
}

func (s *Session) IsConnected() bool {
	return s.connected.Load() && s.client() != nil
}

func (s *Session) Events() <-chan types.SessionEvent { return s.events }

func (s *Session) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	token, ok := s.mapper.getToken(symbol)
	if !ok {
		s.emitError(0, symbol, noInstrumentCode, "no instrument on "+s.p.Exchange)
		return nil, fmt.Errorf("qualify %s: no %s instrument", symbol, s.p.Exchange)
	}
	return &types.Contract{Symbol: symbol, Exchange: s.p.Exchange, Currency: "INR", ConID: int64(token)}, nil
}

func (s *Session) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	kc := s.client()
	if kc == nil || !s.connected.Load() {
		return 0, nil, ErrNotConnected
	}

	reqID := s.nextReqID.Add(1)
	quote := types.NewQuote()
	key := contract.Exchange + ":" + contract.Symbol

	go func() {
		ltp, err := kc.GetLTP(key)
		if err != nil {
			s.emitError(reqID, contract.Symbol, 0, err.Error())
			return
		}
		if q, ok := ltp[key]; ok {
			quote.Set(q.LastPrice)
		}
	}()
	return reqID, quote, nil
}

// RequestHistoricalBars fetches a year of day candles. Kite only serves
// exchange-session candles, so the RTH flag needs no mapping.
func (s *Session) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	kc := s.client()
	if kc == nil || !s.connected.Load() {
		return nil, ErrNotConnected
	}

	to := time.Now()
	from := to.Add(-historyLookback)
	var bars []types.Bar
	err := await(ctx, func() error {
		data, err := kc.GetHistoricalData(int(contract.ConID), "day", from, to, false, false)
		if err != nil {
			return err
		}
		bars = make([]types.Bar, 0, len(data))
		for _, d := range data {
			bars = append(bars, types.Bar{
				Date:   d.Date.Time.Format("2006-01-02"),
				Open:   d.Open,
				High:   d.High,
				Low:    d.Low,
				Close:  d.Close,
				Volume: float64(d.Volume),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kite history %s: %w", contract.Symbol, err)
	}
	return bars, nil
}

func (s *Session) client() *kiteconnect.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kc
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen == gen
}

func (s *Session) emit(ev types.SessionEvent) {
	select {
	case s.events <- ev:
	default:
		logger.Warn(context.Background(), "Dropping session event, channel full", "kind", ev.Kind)
	}
}

func (s *Session) emitError(reqID int64, symbol string, code int64, msg string) {
	s.emit(types.SessionEvent{
		Kind: types.EventError,
		Err:  &types.ErrorEvent{ReqID: reqID, Code: code, Message: msg, Symbol: symbol},
	})
}

// await runs a blocking SDK call and gives up when ctx ends. The call itself
// keeps running in the background until the SDK's HTTP timeout.
func await(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
