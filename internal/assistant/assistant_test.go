package assistant

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"ibkr-sma-scanner/internal/llm/noop"
	"ibkr-sma-scanner/internal/types"
)

type stubPrices map[string]float64

func (s stubPrices) FetchPrice(ctx context.Context, symbol string, settle time.Duration) (float64, bool) {
	p, ok := s[symbol]
	return p, ok
}

type stubSmas map[string]map[int]float64

func (s stubSmas) FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot {
	return types.SmaSnapshot{Symbol: symbol, SMA: s[symbol]}
}

type recordingAnswerer struct {
	question, metrics string
	answer            string
	err               error
}

func (r *recordingAnswerer) Answer(ctx context.Context, question, liveMetrics string) (string, error) {
	r.question, r.metrics = question, liveMetrics
	return r.answer, r.err
}

func newAssistant(ans *recordingAnswerer) *Assistant {
	prices := stubPrices{"AAPL": 190.456}
	smas := stubSmas{"AAPL": {50: 180.1, 100: 175.25, 200: 170}}
	if ans == nil {
		return New(prices, smas, nil, 0)
	}
	return New(prices, smas, ans, 0)
}

func TestTickersAndNormalize(t *testing.T) {
	q := "Is $AAPL stronger than $MSFT? What about $AAPL and $toolong or $ABCDEF?"
	got := Tickers(q)
	want := []string{"AAPL", "MSFT", "ABCDE"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if n := Normalize("Buy $AAPL now"); n != "Buy AAPL now" {
		t.Errorf("Expected $ stripped, got %q", n)
	}
}

func TestAskEnrichesQuestion(t *testing.T) {
	ans := &recordingAnswerer{answer: "AAPL is in an uptrend."}
	res := newAssistant(ans).Ask(context.Background(), "Should I hold $AAPL?")

	if res.Answer != "AAPL is in an uptrend." {
		t.Errorf("Expected answerer output, got %q", res.Answer)
	}
	wantMetrics := "AAPL: current_price=190.46, SMA50=180.1, SMA100=175.25, SMA200=170"
	if ans.metrics != wantMetrics {
		t.Errorf("Expected metrics %q, got %q", wantMetrics, ans.metrics)
	}
	wantQ := "Live Metrics:\n" + wantMetrics + "\n\nShould I hold AAPL?"
	if ans.question != wantQ {
		t.Errorf("Expected enriched question %q, got %q", wantQ, ans.question)
	}
	if len(res.Metrics) != 1 || res.Metrics[0].Trend[200] != "above" {
		t.Errorf("Expected trend flags, got %+v", res.Metrics)
	}
}

func TestAskWithoutTickers(t *testing.T) {
	ans := &recordingAnswerer{answer: "ok"}
	newAssistant(ans).Ask(context.Background(), "What is a golden cross?")
	if ans.metrics != NoMetrics {
		t.Errorf("Expected %q, got %q", NoMetrics, ans.metrics)
	}
}

func TestAskUnknownTickerDropped(t *testing.T) {
	ans := &recordingAnswerer{answer: "ok"}
	res := newAssistant(ans).Ask(context.Background(), "How is $ZZZZ?")
	if len(res.Metrics) != 0 || ans.metrics != NoMetrics {
		t.Errorf("Expected no metrics for unknown ticker, got %+v / %q", res.Metrics, ans.metrics)
	}
}

func TestAskFallbacks(t *testing.T) {
	if got := newAssistant(nil).Ask(context.Background(), "q").Answer; got != NotLoadedMessage {
		t.Errorf("Expected not-loaded message, got %q", got)
	}

	a := New(stubPrices{}, stubSmas{}, noop.NewNoopAnswerer(), 0)
	if got := a.Ask(context.Background(), "q").Answer; got != NotLoadedMessage {
		t.Errorf("Expected not-loaded message from noop, got %q", got)
	}

	failing := &recordingAnswerer{err: errors.New("boom")}
	if got := newAssistant(failing).Ask(context.Background(), "q").Answer; got != UnavailableMessage {
		t.Errorf("Expected unavailable message, got %q", got)
	}
}
