package session

import (
	"context"

	"ibkr-sma-scanner/internal/logger"
)

// ScheduleReconnect starts the reconnect loop unless one is already running.
// It reports whether a new loop was started.
func (m *Manager) ScheduleReconnect() bool {
	m.supMu.Lock()
	defer m.supMu.Unlock()

	if m.reconnecting {
		logger.Debug(m.loopCtx, "Reconnect already in progress")
		return false
	}
	if m.loopCtx.Err() != nil || m.isShuttingDown() {
		return false
	}

	ctx, cancel := context.WithCancel(m.loopCtx)
	done := make(chan struct{})
	m.reconnecting = true
	m.supCancel = cancel
	m.supDone = done

	go m.superviseReconnect(ctx, done)
	return true
}

// Reconnecting reports whether a reconnect loop is active.
func (m *Manager) Reconnecting() bool {
	m.supMu.Lock()
	defer m.supMu.Unlock()
	return m.reconnecting
}

// superviseReconnect walks the delay sequence, trying the last working
// clientId and then the next one at every step. It never panics past its
// boundary and gives up quietly once the sequence is exhausted.
func (m *Manager) superviseReconnect(ctx context.Context, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Reconnect supervisor panicked", "panic", r)
		}
		m.supMu.Lock()
		m.reconnecting = false
		m.supCancel = nil
		m.supDone = nil
		m.supMu.Unlock()
		close(done)
	}()

	for i, delay := range m.opts.ReconnectDelays {
		if ctx.Err() != nil {
			logger.Info(ctx, "Reconnect cancelled")
			return
		}
		if m.IsConnected() {
			logger.Info(ctx, "Session already re-established")
			return
		}

		cid := m.nextClientID()
		if err := m.tryConnect(ctx, cid); err == nil {
			m.startEventLoop()
			logger.Info(ctx, "Reconnected to broker", "client_id", cid, "step", i+1)
			return
		}

		if ctx.Err() == nil {
			alt := cid + 1
			if err := m.tryConnect(ctx, alt); err == nil {
				m.startEventLoop()
				logger.Info(ctx, "Reconnected to broker", "client_id", alt, "step", i+1)
				return
			}
		}

		logger.Warn(ctx, "Reconnect failed, retrying", "retry_in", delay.String(), "step", i+1)
		if err := m.opts.Sleep(ctx, delay); err != nil {
			logger.Info(ctx, "Reconnect cancelled")
			return
		}
	}

	logger.Error(ctx, "Reconnect attempts exhausted, staying disconnected",
		"steps", len(m.opts.ReconnectDelays),
	)
}

// stopSupervisor cancels a running loop and waits for it to exit.
func (m *Manager) stopSupervisor() {
	m.supMu.Lock()
	cancel, done := m.supCancel, m.supDone
	m.supMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
