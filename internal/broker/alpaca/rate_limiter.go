package alpaca

import (
	"math"

	"golang.org/x/time/rate"
)

// newRateLimiter allows rps requests per second shared by all REST calls of a
// session, with bursts of up to ceil(rps).
func newRateLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}
