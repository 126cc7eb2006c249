package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/llm/noop"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/marketdata"
	"ibkr-sma-scanner/internal/ta"
	"ibkr-sma-scanner/internal/types"
)

const (
	NotLoadedMessage   = "Strategy knowledge base not loaded."
	UnavailableMessage = "Note: strategy knowledge base unavailable right now."
	NoMetrics          = "(none)"
)

var tickerPattern = regexp.MustCompile(`\$([A-Z]{1,5})`)

type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string, settle time.Duration) (float64, bool)
}

type SmaFetcher interface {
	FetchSmaAndLastPrice(ctx context.Context, symbol string, windows []int) types.SmaSnapshot
}

// Assistant enriches free-text questions with live metrics for every
// $TICKER mentioned and hands them to an Answerer.
type Assistant struct {
	prices   PriceFetcher
	smas     SmaFetcher
	answerer interfaces.Answerer
	settle   time.Duration
}

func New(prices PriceFetcher, smas SmaFetcher, answerer interfaces.Answerer, settle time.Duration) *Assistant {
	return &Assistant{prices: prices, smas: smas, answerer: answerer, settle: settle}
}

type Answer struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Metrics  []types.LiveMetric `json:"metrics"`
}

// Ask never fails: answerer problems become fixed fallback messages.
func (a *Assistant) Ask(ctx context.Context, question string) Answer {
	symbols := Tickers(question)
	metrics := a.Metrics(ctx, symbols)
	text := FormatMetrics(metrics)
	enriched := fmt.Sprintf("Live Metrics:\n%s\n\n%s", text, Normalize(question))

	out := Answer{Question: question, Metrics: metrics}
	if a.answerer == nil {
		out.Answer = NotLoadedMessage
		return out
	}

	answer, err := a.answerer.Answer(ctx, enriched, text)
	switch {
	case errors.Is(err, noop.ErrNotLoaded):
		out.Answer = NotLoadedMessage
	case err != nil:
		logger.ErrorWithErr(ctx, "Answerer failed", err)
		out.Answer = UnavailableMessage
	default:
		out.Answer = answer
	}
	return out
}

// Metrics looks up a live price and the SMAs for each symbol. Symbols that
// yield nothing are dropped.
func (a *Assistant) Metrics(ctx context.Context, symbols []string) []types.LiveMetric {
	out := make([]types.LiveMetric, 0, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		m := types.LiveMetric{Symbol: sym, SMA: map[int]float64{}}
		if price, ok := a.prices.FetchPrice(ctx, sym, a.settle); ok {
			m.Price = ta.Round2(price)
			m.HasPrice = true
		}
		snap := a.smas.FetchSmaAndLastPrice(ctx, sym, marketdata.DefaultWindows)
		for w, v := range snap.SMA {
			m.SMA[w] = v
		}
		if m.HasPrice && len(m.SMA) > 0 {
			m.Trend = make(map[int]string, len(m.SMA))
			for w, v := range m.SMA {
				m.Trend[w] = ta.Trend(m.Price, v)
			}
		}
		if !m.HasPrice && len(m.SMA) == 0 {
			logger.Warn(ctx, "No metrics for ticker", "symbol", sym)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Tickers returns the distinct $-prefixed symbols in order of appearance.
func Tickers(q string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range tickerPattern.FindAllStringSubmatch(q, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Normalize strips the $ prefix from ticker tokens.
func Normalize(q string) string {
	return tickerPattern.ReplaceAllString(q, "$1")
}

// FormatMetrics renders one "SYM: current_price=…, SMA50=…" line per symbol.
func FormatMetrics(metrics []types.LiveMetric) string {
	var lines []string
	for _, m := range metrics {
		var parts []string
		if m.HasPrice {
			parts = append(parts, "current_price="+formatNum(m.Price))
		}
		for _, w := range marketdata.DefaultWindows {
			if v, ok := m.SMA[w]; ok {
				parts = append(parts, fmt.Sprintf("SMA%d=%s", w, formatNum(v)))
			}
		}
		if len(parts) > 0 {
			lines = append(lines, m.Symbol+": "+strings.Join(parts, ", "))
		}
	}
	if len(lines) == 0 {
		return NoMetrics
	}
	return strings.Join(lines, "\n")
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
