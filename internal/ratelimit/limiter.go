package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tokenlens/internal/metrics"
)

// Limiter wraps a token-bucket rate limiter shared by all callers hitting one
// endpoint. With burst 1 it enforces an even 1/rps spacing between requests.
type Limiter struct {
	limiter  *rate.Limiter
	endpoint string
}

// NewLimiter creates a rate limiter that allows rps requests per second with
// a burst capacity of burst tokens. The endpoint name is only used for
// metrics labels.
func NewLimiter(rps float64, burst int, endpoint string) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		endpoint: endpoint,
	}
}

// Wait blocks until the limiter allows one event, or ctx is done.
// Uses Reserve() to guarantee exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.RateLimitWaits.WithLabelValues(l.endpoint).Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
