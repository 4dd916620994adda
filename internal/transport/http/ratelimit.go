package http

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows perMinute requests a minute with bursts up to the same
// size. Zero or less disables limiting.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}
