package kite

import (
	"context"
	"sync"
	"time"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/types"
)

// setupEventHandlers binds ticker callbacks to generation gen. up is closed
// on the first connect.
func (s *Session) setupEventHandlers(t *kiteticker.Ticker, gen uint64, up chan struct{}) {
	var once sync.Once

	t.OnConnect(func() {
		if !s.isCurrent(gen) {
			return
		}
		s.connected.Store(true)
		logger.Info(context.Background(), "Kite ticker connected")
		once.Do(func() { close(up) })
	})
	t.OnError(func(err error) {
		logger.ErrorWithErr(context.Background(), "Kite ticker error", err)
	})
	t.OnClose(func(code int, reason string) {
		s.onClose(gen, code, reason)
	})
	t.OnReconnect(func(attempt int, delay time.Duration) {
		logger.Info(context.Background(), "Kite ticker reconnecting", "attempt", attempt, "delay", delay)
	})
	t.OnNoReconnect(func(attempt int) {
		logger.Warn(context.Background(), "Kite ticker gave up reconnecting", "attempts", attempt)
	})
}

func (s *Session) onClose(gen uint64, code int, reason string) {
	if !s.isCurrent(gen) {
		return
	}
	s.connected.Store(false)
	logger.Warn(context.Background(), "Kite ticker closed", "code", code, "reason", reason)

	if s.intentional.Load() {
		return
	}
	s.emit(types.SessionEvent{Kind: types.EventDisconnected, Reason: reason})
}
