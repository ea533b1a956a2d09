package http

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows perMinute messages per minute with bursts of the same
// size. Zero or less disables limiting.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}
