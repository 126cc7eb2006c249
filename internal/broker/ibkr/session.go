package ibkr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/ibapi"
	"github.com/scmhub/ibsync"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

var ErrNotConnected = errors.New("ibkr session not connected")

type Params struct {
	Exchange       string
	Currency       string
	RequestTimeout time.Duration
	// MarketDataType is sent after every connect when non-zero.
	MarketDataType int64
}

// Session talks to TWS / IB Gateway through ibsync. Every Connect builds a
// fresh client; a generation counter keeps watchers of a replaced client from
// reporting its disconnect.
type Session struct {
	p Params

	mu  sync.RWMutex
	ib  *ibsync.IB
	gen uint64

	// intentional is set while Disconnect tears the client down
	intentional atomic.Bool
	nextReqID   atomic.Int64

	events chan types.SessionEvent
}

var _ interfaces.Session = (*Session)(nil)

func New(p Params) *Session {
	if p.Exchange == "" {
		p.Exchange = "SMART"
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 30 * time.Second
	}
	ibsync.SetLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().
		Timestamp().Str("component", "ibsync").Logger())

	return &Session{p: p, events: make(chan types.SessionEvent, 256)}
}

func (s *Session) Connect(ctx context.Context, id types.SessionIdentity) error {
	cfg := ibsync.NewConfig(
		ibsync.WithHost(id.Host),
		ibsync.WithPort(id.Port),
		ibsync.WithClientID(id.ClientID),
		ibsync.WithTimeout(s.p.RequestTimeout),
		ibsync.WithoutSync(),
	)
	ib := ibsync.NewIB(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- ib.Connect() }()

	select {
	case <-ctx.Done():
		// the dial may still complete; make sure it does not linger
		go func() {
			if err := <-errCh; err == nil {
				_ = ib.Disconnect()
			}
		}()
		return fmt.Errorf("connect %s: %w", id, ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("connect %s: %w", id, err)
		}
	}

	if !ib.IsConnected() {
		return fmt.Errorf("connect %s: gateway closed the session", id)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ib = ib
	s.mu.Unlock()
	s.intentional.Store(false)

	ib.ErrorCallback = func(err error) { s.emitError(0, "", err) }
	if s.p.MarketDataType > 0 {
		ib.ReqMarketDataType(s.p.MarketDataType)
	}

	go s.watch(ib, gen)
	return nil
}

// watch reports the end of the client's context as a disconnect unless the
// client was replaced or closed on purpose.
func (s *Session) watch(ib *ibsync.IB, gen uint64) {
	<-ib.Context().Done()

	s.mu.RLock()
	current := s.gen == gen
	s.mu.RUnlock()
	if !current || s.intentional.Load() {
		return
	}
	s.emit(types.SessionEvent{Kind: types.EventDisconnected, Reason: "gateway connection closed"})
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	ib := s.ib
	s.ib = nil
	s.mu.Unlock()

	if ib == nil {
		return nil
	}
	s.intentional.Store(true)
	if err := ib.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (s *Session) IsConnected() bool {
	ib := s.client()
	return ib != nil && ib.IsConnected()
}

func (s *Session) Events() <-chan types.SessionEvent { return s.events }

func (s *Session) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	ib := s.client()
	if ib == nil || !ib.IsConnected() {
		return nil, ErrNotConnected
	}

	c := ibsync.NewStock(symbol, s.p.Exchange, s.p.Currency)
	errCh := make(chan error, 1)
	go func() { errCh <- ib.QualifyContract(c) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		if err != nil {
			code, msg := errorCode(err)
			s.emitErrorCode(0, symbol, code, msg)
			return nil, fmt.Errorf("qualify %s: %w", symbol, err)
		}
	}

	return &types.Contract{Symbol: symbol, Exchange: c.Exchange, Currency: c.Currency, ConID: c.ConID}, nil
}

// RequestSnapshot fires a one-shot market data request. The quote is filled
// from the ticker once the broker finishes the snapshot.
func (s *Session) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	ib := s.client()
	if ib == nil || !ib.IsConnected() {
		return 0, nil, ErrNotConnected
	}

	reqID := s.nextReqID.Add(1)
	quote := types.NewQuote()
	c := toIBContract(contract, s.p)

	go func() {
		ticker, err := ib.Snapshot(c)
		if ticker != nil {
			if p := ticker.MarketPrice(); p > 0 {
				quote.Set(p)
			}
		}
		if err != nil {
			code, msg := errorCode(err)
			s.emitErrorCode(reqID, contract.Symbol, code, msg)
		}
	}()
	return reqID, quote, nil
}

func (s *Session) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	ib := s.client()
	if ib == nil || !ib.IsConnected() {
		return nil, ErrNotConnected
	}

	c := toIBContract(contract, s.p)
	barCh, cancel := ib.ReqHistoricalData(c, "", q.Duration, q.BarSize, q.WhatToShow, q.UseRTH, 1)

	var bars []types.Bar
	for {
		select {
		case <-ctx.Done():
			cancel()
			return bars, ctx.Err()
		case b, ok := <-barCh:
			if !ok {
				return bars, nil
			}
			date, err := ParseBarDate(b.Date)
			if err != nil {
				logger.Warn(ctx, "Skipping bar with unparseable date", "symbol", contract.Symbol, "date", b.Date)
				continue
			}
			bars = append(bars, types.Bar{Date: date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close})
		}
	}
}

func (s *Session) client() *ibsync.IB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ib
}

func (s *Session) emit(ev types.SessionEvent) {
	select {
	case s.events <- ev:
	default:
		logger.Warn(context.Background(), "Dropping session event, channel full", "kind", ev.Kind)
	}
}

func (s *Session) emitError(reqID int64, symbol string, err error) {
	code, msg := errorCode(err)
	s.emitErrorCode(reqID, symbol, code, msg)
}

func (s *Session) emitErrorCode(reqID int64, symbol string, code int64, msg string) {
	s.emit(types.SessionEvent{
		Kind: types.EventError,
		Err:  &types.ErrorEvent{ReqID: reqID, Code: code, Message: msg, Symbol: symbol},
	})
}

func toIBContract(c *types.Contract, p Params) *ibsync.Contract {
	out := ibsync.NewStock(c.Symbol, p.Exchange, p.Currency)
	if c.Exchange != "" {
		out.Exchange = c.Exchange
	}
	if c.Currency != "" {
		out.Currency = c.Currency
	}
	out.ConID = c.ConID
	return out
}

// errorCode extracts the TWS error code from err, 0 when there is none.
func errorCode(err error) (int64, string) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := any(e).(type) {
		case ibapi.CodeMsgPair:
			return v.Code, v.Msg
		case *ibapi.CodeMsgPair:
			return v.Code, v.Msg
		}
	}
	return 0, err.Error()
}
