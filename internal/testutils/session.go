package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/types"
)

var (
	ErrClientIDInUse = errors.New("client id is already in use")
	ErrNotConnected  = errors.New("fake session not connected")
)

// FakeSession is an in-memory broker session for tests.
type FakeSession struct {
	mu sync.Mutex

	connected    bool
	identity     types.SessionIdentity
	connectCalls []types.SessionIdentity
	disconnects  int

	failConnects int
	rejectIDs    map[int64]bool
	connectGate  chan struct{}
	activeConn   int
	maxActive    int

	// EmitOnDisconnect makes Disconnect publish a disconnect event, the way
	// brokers that always notify do.
	EmitOnDisconnect bool
	// SnapshotLatency delays filling quotes.
	SnapshotLatency time.Duration

	prices        map[string]float64
	bars          map[string][]types.Bar
	qualifyErrs   map[string]error
	snapshotErrs  map[string]error
	historyErrs   map[string]error
	snapshotOrder []string
	historyCalls  map[string]int
	nextReqID     int64

	events chan types.SessionEvent
}

var _ interfaces.Session = (*FakeSession)(nil)

func NewFakeSession() *FakeSession {
	return &FakeSession{
		rejectIDs:    make(map[int64]bool),
		prices:       make(map[string]float64),
		bars:         make(map[string][]types.Bar),
		qualifyErrs:  make(map[string]error),
		snapshotErrs: make(map[string]error),
		historyErrs:  make(map[string]error),
		historyCalls: make(map[string]int),
		nextReqID:    1000,
		events:       make(chan types.SessionEvent, 64),
	}
}

// FailConnects makes the next n Connect calls fail.
func (f *FakeSession) FailConnects(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failConnects = n
}

// RejectClientID makes every Connect with id fail until AcceptClientID.
func (f *FakeSession) RejectClientID(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectIDs[id] = true
}

func (f *FakeSession) AcceptClientID(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rejectIDs, id)
}

// GateConnects makes Connect block until the returned channel is closed or
// the attempt's context ends.
func (f *FakeSession) GateConnects() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectGate = make(chan struct{})
	return f.connectGate
}

func (f *FakeSession) Connect(ctx context.Context, id types.SessionIdentity) error {
	f.mu.Lock()
	f.connectCalls = append(f.connectCalls, id)
	if f.connected {
		f.mu.Unlock()
		return errors.New("fake session already connected")
	}
	f.activeConn++
	if f.activeConn > f.maxActive {
		f.maxActive = f.activeConn
	}
	gate := f.connectGate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.activeConn--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConnects > 0 {
		f.failConnects--
		return fmt.Errorf("connect %s: timeout", id)
	}
	if f.rejectIDs[id.ClientID] {
		return fmt.Errorf("connect %s: %w", id, ErrClientIDInUse)
	}
	f.connected = true
	f.identity = id
	return nil
}

func (f *FakeSession) Disconnect() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.disconnects++
	emit := f.EmitOnDisconnect && was
	f.mu.Unlock()

	if emit {
		f.events <- types.SessionEvent{Kind: types.EventDisconnected, Reason: "client disconnect"}
	}
	return nil
}

// Drop simulates the gateway closing the connection.
func (f *FakeSession) Drop(reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- types.SessionEvent{Kind: types.EventDisconnected, Reason: reason}
}

func (f *FakeSession) EmitError(ev types.ErrorEvent) {
	f.events <- types.SessionEvent{Kind: types.EventError, Err: &ev}
}

func (f *FakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeSession) Events() <-chan types.SessionEvent { return f.events }

func (f *FakeSession) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *FakeSession) SetBars(symbol string, bars []types.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars[symbol] = bars
}

// SetCloses installs daily bars with the given closes ending on lastDate.
func (f *FakeSession) SetCloses(symbol string, lastDate time.Time, closes ...float64) {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		d := lastDate.AddDate(0, 0, i-len(closes)+1)
		bars[i] = types.Bar{Date: d.Format("2006-01-02"), Open: c, High: c, Low: c, Close: c}
	}
	f.SetBars(symbol, bars)
}

func (f *FakeSession) FailQualify(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qualifyErrs[symbol] = err
}

func (f *FakeSession) FailSnapshot(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotErrs[symbol] = err
}

func (f *FakeSession) FailHistory(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyErrs[symbol] = err
}

func (f *FakeSession) Qualify(ctx context.Context, symbol string) (*types.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	if err := f.qualifyErrs[symbol]; err != nil {
		return nil, err
	}
	return &types.Contract{Symbol: symbol, Exchange: "SMART", Currency: "USD"}, nil
}

func (f *FakeSession) RequestSnapshot(ctx context.Context, contract *types.Contract) (int64, *types.Quote, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return 0, nil, ErrNotConnected
	}
	if err := f.snapshotErrs[contract.Symbol]; err != nil {
		f.mu.Unlock()
		return 0, nil, err
	}
	f.nextReqID++
	reqID := f.nextReqID
	f.snapshotOrder = append(f.snapshotOrder, contract.Symbol)
	price, ok := f.prices[contract.Symbol]
	latency := f.SnapshotLatency
	f.mu.Unlock()

	quote := types.NewQuote()
	if ok {
		go func() {
			if latency > 0 {
				time.Sleep(latency)
			}
			quote.Set(price)
		}()
	}
	return reqID, quote, nil
}

func (f *FakeSession) RequestHistoricalBars(ctx context.Context, contract *types.Contract, q types.BarQuery) ([]types.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	f.historyCalls[contract.Symbol]++
	if err := f.historyErrs[contract.Symbol]; err != nil {
		return nil, err
	}
	bars := f.bars[contract.Symbol]
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (f *FakeSession) ConnectCalls() []types.SessionIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.SessionIdentity, len(f.connectCalls))
	copy(out, f.connectCalls)
	return out
}

func (f *FakeSession) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// MaxConcurrentConnects is the highest number of Connect calls seen in flight.
func (f *FakeSession) MaxConcurrentConnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *FakeSession) SnapshotOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.snapshotOrder))
	copy(out, f.snapshotOrder)
	return out
}

func (f *FakeSession) HistoryCalls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[symbol]
}

// WaitFor polls cond until it holds or the timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
