package kite

import (
	"context"
	"errors"
	"testing"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"ibkr-sma-scanner/internal/types"
)

func TestInstrumentMapperLoad(t *testing.T) {
	im := newInstrumentMapper()
	im.addMapping("STALE", 1)

	n := im.load(kiteconnect.Instruments{
		{InstrumentToken: 256265, Tradingsymbol: "RELIANCE", InstrumentType: "EQ"},
		{InstrumentToken: 2953217, Tradingsymbol: "TCS", InstrumentType: "EQ"},
		{InstrumentToken: 9999, Tradingsymbol: "NIFTY24MARFUT", InstrumentType: "FUT"},
	})
	if n != 2 {
		t.Errorf("Expected 2 equity instruments, got %d", n)
	}
	if tok, ok := im.getToken("TCS"); !ok || tok != 2953217 {
		t.Errorf("Expected TCS token 2953217, got %d (%v)", tok, ok)
	}
	if im.getSymbol(256265) != "RELIANCE" {
		t.Errorf("Expected reverse lookup RELIANCE, got %q", im.getSymbol(256265))
	}
	if _, ok := im.getToken("STALE"); ok {
		t.Error("Expected load to replace earlier mappings")
	}
}

func TestConnectRequiresCredentials(t *testing.T) {
	s := New(Params{})
	err := s.Connect(context.Background(), types.SessionIdentity{})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("Expected ErrMissingCredentials, got %v", err)
	}
	if s.IsConnected() {
		t.Error("Expected session to stay disconnected")
	}
}

func TestRequestsNeedConnection(t *testing.T) {
	s := New(Params{APIKey: "k", AccessToken: "t"})
	if _, err := s.Qualify(context.Background(), "TCS"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from Qualify, got %v", err)
	}
	c := &types.Contract{Symbol: "TCS", Exchange: "NSE"}
	if _, _, err := s.RequestSnapshot(context.Background(), c); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from RequestSnapshot, got %v", err)
	}
	if _, err := s.RequestHistoricalBars(context.Background(), c, types.DailyYearRTH); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from RequestHistoricalBars, got %v", err)
	}
}

func TestOnCloseEmitsDisconnect(t *testing.T) {
	s := New(Params{})
	s.gen = 3
	s.connected.Store(true)

	s.onClose(2, 1006, "stale generation")
	select {
	case ev := <-s.Events():
		t.Fatalf("Expected no event for a replaced ticker, got %+v", ev)
	default:
	}

	s.onClose(3, 1006, "abnormal closure")
	select {
	case ev := <-s.Events():
		if ev.Kind != types.EventDisconnected || ev.Reason != "abnormal closure" {
			t.Errorf("Unexpected event %+v", ev)
		}
	default:
		t.Fatal("Expected a disconnect event")
	}
	if s.connected.Load() {
		t.Error("Expected connected flag cleared")
	}

	s.intentional.Store(true)
	s.onClose(3, 1000, "normal")
	select {
	case ev := <-s.Events():
		t.Fatalf("Expected no event after an intentional close, got %+v", ev)
	default:
	}
}
