package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

var DefaultReconnectDelays = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
	90 * time.Second,
	120 * time.Second,
}

type Options struct {
	Host         string
	Port         int
	BaseClientID int64
	// MaxAttempts bounds the initial Connect. Defaults to 10.
	MaxAttempts int
	// ConnectTimeout bounds a single connection attempt. Zero means no limit
	// beyond the caller's context.
	ConnectTimeout  time.Duration
	ReconnectDelays []time.Duration
	// AttemptDelay is the pause after failed initial attempt i. Defaults to 2+i seconds.
	AttemptDelay func(attempt int) time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
}

type Status struct {
	State        string                `json:"state"`
	Identity     types.SessionIdentity `json:"identity"`
	Reconnecting bool                  `json:"reconnecting"`
	ShuttingDown bool                  `json:"shutting_down"`
}

// Manager owns the single broker session of the process. Its state machine
// is driven by the session's event channel; unexpected disconnects start the
// reconnect supervisor.
type Manager struct {
	session    interfaces.Session
	correlator *Correlator
	opts       Options

	// connMu serializes Connect/Disconnect calls on the session
	connMu sync.Mutex

	mu           sync.RWMutex
	state        types.ConnectionState
	identity     types.SessionIdentity
	lastClientID int64
	hasLast      bool
	shuttingDown bool
	// set while Connect runs its own attempts
	connecting bool

	supMu        sync.Mutex
	reconnecting bool
	supCancel    context.CancelFunc
	supDone      chan struct{}

	loopOnce   sync.Once
	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func NewManager(session interfaces.Session, correlator *Correlator, opts Options) *Manager {
	if correlator == nil {
		correlator = NewCorrelator()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.ReconnectDelays == nil {
		opts.ReconnectDelays = DefaultReconnectDelays
	}
	if opts.AttemptDelay == nil {
		opts.AttemptDelay = func(attempt int) time.Duration {
			return time.Duration(2+attempt) * time.Second
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	return &Manager{
		session:    session,
		correlator: correlator,
		opts:       opts,
		state:      types.StateDisconnected,
		loopCtx:    loopCtx,
		loopCancel: loopCancel,
		loopDone:   make(chan struct{}),
	}
}

// Connect opens the session starting at the base clientId. After every second
// failed attempt the clientId is bumped to escape an identity still held by a
// previous session. Returns ErrConnectionExhausted after MaxAttempts failures.
func (m *Manager) Connect(ctx context.Context) error {
	m.stopSupervisor()

	m.mu.Lock()
	m.shuttingDown = false
	m.connecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	cid := m.opts.BaseClientID
	var lastErr error
	for attempt := 0; attempt < m.opts.MaxAttempts; attempt++ {
		err := m.tryConnect(ctx, cid)
		if err == nil {
			m.startEventLoop()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return fmt.Errorf("connect cancelled: %w", ctx.Err())
		}

		if attempt%2 == 1 {
			cid++
		}
		if attempt == m.opts.MaxAttempts-1 {
			break
		}
		if err := m.opts.Sleep(ctx, m.opts.AttemptDelay(attempt)); err != nil {
			return fmt.Errorf("connect cancelled: %w", err)
		}
	}

	logger.Error(ctx, "Could not connect to broker",
		"attempts", m.opts.MaxAttempts,
		"host", m.opts.Host,
		"port", m.opts.Port,
		"error", lastErr,
	)
	return fmt.Errorf("%w (%d attempts): %v", ErrConnectionExhausted, m.opts.MaxAttempts, lastErr)
}

// tryConnect makes one attempt with the given clientId, dropping any live
// session first so two sessions are never held at once.
func (m *Manager) tryConnect(ctx context.Context, clientID int64) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.isShuttingDown() {
		return errShuttingDown
	}

	id := types.SessionIdentity{Host: m.opts.Host, Port: m.opts.Port, ClientID: clientID}
	m.setState(types.StateConnecting)

	if m.session.IsConnected() {
		if err := m.session.Disconnect(); err != nil {
			logger.Warn(ctx, "Failed to drop previous session", "error", err)
		}
	}

	attemptCtx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	if err := m.session.Connect(attemptCtx, id); err != nil {
		logger.Warn(ctx, "Connect attempt failed", "client_id", clientID, "error", err)
		m.setState(types.StateDisconnected)
		return err
	}

	m.mu.Lock()
	m.state = types.StateConnected
	m.identity = id
	m.lastClientID = clientID
	m.hasLast = true
	m.mu.Unlock()

	logger.Connection(ctx, types.StateConnected.String(), id.Host, id.Port, id.ClientID)
	return nil
}

// GracefulDisconnect marks the shutdown as intentional, stops any reconnect
// loop and closes the session. Calling it while disconnected is a no-op.
func (m *Manager) GracefulDisconnect(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()

	m.stopSupervisor()

	m.connMu.Lock()
	defer m.connMu.Unlock()

	if !m.session.IsConnected() {
		m.setState(types.StateDisconnected)
		return nil
	}

	if err := m.session.Disconnect(); err != nil {
		logger.ErrorWithErr(ctx, "Graceful disconnect failed", err)
		return fmt.Errorf("graceful disconnect: %w", err)
	}
	m.setState(types.StateDisconnected)

	id := m.Identity()
	logger.Connection(ctx, types.StateDisconnected.String(), id.Host, id.Port, id.ClientID, "reason", "shutdown")
	return nil
}

// Close disposes the manager. Call GracefulDisconnect first to close the session.
func (m *Manager) Close() {
	m.stopSupervisor()
	m.loopCancel()
	// releases loopDone when the loop never started
	m.loopOnce.Do(func() { close(m.loopDone) })
	<-m.loopDone
}

func (m *Manager) startEventLoop() {
	m.loopOnce.Do(func() {
		go m.runEvents()
	})
}

func (m *Manager) runEvents() {
	defer close(m.loopDone)

	events := m.session.Events()
	for {
		select {
		case <-m.loopCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(m.loopCtx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev types.SessionEvent) {
	switch ev.Kind {
	case types.EventDisconnected:
		m.onDisconnect(ctx, ev.Reason)
	case types.EventError:
		m.handleError(ctx, ev.Err)
	}
}

func (m *Manager) onDisconnect(ctx context.Context, reason string) {
	if m.isShuttingDown() {
		m.setState(types.StateDisconnected)
		logger.Info(ctx, "Broker disconnected (graceful shutdown)")
		return
	}
	if m.session.IsConnected() {
		logger.Debug(ctx, "Ignoring disconnect notice for a replaced session", "reason", reason)
		return
	}
	if m.isConnecting() {
		logger.Debug(ctx, "Ignoring disconnect notice while connecting", "reason", reason)
		return
	}

	m.setState(types.StateDisconnected)
	logger.Warn(ctx, "Broker disconnected, scheduling reconnect", "reason", reason)
	m.ScheduleReconnect()
}

func (m *Manager) setState(s types.ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) isConnecting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connecting
}

func (m *Manager) isShuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shuttingDown
}

func (m *Manager) State() types.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the last identity that connected successfully.
func (m *Manager) Identity() types.SessionIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

func (m *Manager) IsConnected() bool {
	return m.State() == types.StateConnected && m.session.IsConnected()
}

func (m *Manager) Session() interfaces.Session { return m.session }

func (m *Manager) Correlator() *Correlator { return m.correlator }

func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{
		State:        m.state.String(),
		Identity:     m.identity,
		ShuttingDown: m.shuttingDown,
	}
	m.mu.RUnlock()
	st.Reconnecting = m.Reconnecting()
	return st
}

func (m *Manager) nextClientID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.hasLast {
		return m.lastClientID
	}
	return m.opts.BaseClientID
}
