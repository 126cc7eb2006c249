package static

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/types"
)

const tradingDaysPerYear = 252

var ErrNotConnected = errors.New("static session not connected")

// Session generates synthetic daily bars without any network access. The
// series of a symbol depends only on the symbol and the anchor date, so
// cache builds and scans agree with each other.
type Session struct {
	anchor    time.Time
	connected atomic.Bool
	nextReqID atomic.Int64

	mu     sync.Mutex
	series map[string][]types.Bar

	events chan types.SessionEvent
}

var _ interfaces.Session = (*Session)(nil)

// New anchors the series on the given date; the zero time means today.
func New(anchor time.Time) *Session {
	if anchor.IsZero() {
		anchor = time.Now()
	}
	anchor = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	return &Session{
		anchor: anchor,
		series: make(map[string][]types.Bar),
		events: make(chan types.SessionEvent, 8),
	}
}

func (s *Session) Connect(ctx context.Context, id types.SessionIdentity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.connected.Store(true)
	return nil
}

func (s *Session) Disconnect() error {
	s.connected.Store(false)
	return nil
}

func (s *Session) IsConnected() bool { return s.connected.Load() }

func (s *Session) Events() <-chan types.SessionEvent { return s.events }

func (s *Session) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	return &types.Contract{Symbol: symbol, Exchange: "STATIC", Currency: "USD", ConID: int64(seed(symbol) & 0x7fffffff)}, nil
}

// RequestSnapshot quotes the last synthetic close nudged by up to 3%.
func (s *Session) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	if !s.IsConnected() {
		return 0, nil, ErrNotConnected
	}
	bars := s.bars(contract.Symbol)
	last := bars[len(bars)-1].Close

	r := rand.New(rand.NewSource(int64(seed(contract.Symbol)) ^ s.anchor.Unix()))
	quote := types.NewQuote()
	quote.Set(last * (1 + (r.Float64()-0.5)*0.06))
	return s.nextReqID.Add(1), quote, nil
}

func (s *Session) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	bars := s.bars(contract.Symbol)
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (s *Session) bars(symbol string) []types.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.series[symbol]; ok {
		return b
	}
	b := generate(symbol, s.anchor, tradingDaysPerYear)
	s.series[symbol] = b
	return b
}

// generate walks n weekdays back from anchor with a per-symbol drift.
func generate(symbol string, anchor time.Time, n int) []types.Bar {
	r := rand.New(rand.NewSource(int64(seed(symbol))))
	base := 20 + r.Float64()*480
	drift := (r.Float64() - 0.45) * 0.004

	dates := make([]time.Time, 0, n)
	for d := anchor; len(dates) < n; d = d.AddDate(0, 0, -1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}

	bars := make([]types.Bar, n)
	c := base
	for i := 0; i < n; i++ {
		c = c * (1 + drift + (r.Float64()-0.5)*0.03)
		h := c * (1 + r.Float64()*0.01)
		l := c * (1 - r.Float64()*0.01)
		bars[i] = types.Bar{
			Date:   dates[n-1-i].Format("2006-01-02"),
			Open:   (h + l) / 2,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: float64(100000 + r.Intn(900000)),
		}
	}
	return bars
}

func seed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}
