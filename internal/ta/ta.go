package ta

import (
	"math"

	"github.com/shopspring/decimal"
)

// SMA is the mean of the last n closes, NaN when fewer than n are available.
func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Round2 rounds to cents.
func Round2(v float64) float64 { return Round(v, 2) }

// SMAs computes the rounded trailing SMA for every window the closes can cover.
func SMAs(closes []float64, windows []int) map[int]float64 {
	out := make(map[int]float64, len(windows))
	for _, w := range windows {
		if w <= 0 || len(closes) < w {
			continue
		}
		out[w] = Round2(SMA(closes, w))
	}
	return out
}

const (
	TrendAbove = "above"
	TrendBelow = "below"
	TrendAt    = "at"
)

func Trend(price, sma float64) string {
	switch {
	case price > sma:
		return TrendAbove
	case price < sma:
		return TrendBelow
	default:
		return TrendAt
	}
}

// AboveAll reports whether price is strictly above every value.
func AboveAll(price float64, smas ...float64) bool {
	if len(smas) == 0 {
		return false
	}
	for _, s := range smas {
		if math.IsNaN(s) || !(price > s) {
			return false
		}
	}
	return true
}
