// Package ratelimit enforces a minimum spacing between outgoing API
// requests. The Gong API budget is expressed in calls per second; the
// limiter spreads requests evenly instead of admitting bursts, and
// serializes acquisitions so no two requests are ever in flight at once.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiting.
var (
	gongRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gong_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the rate limiter before each request",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	gongRateLimitAcquisitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gong_rate_limit_acquisitions_total",
		Help: "Total number of granted rate limiter acquisitions",
	})
)

// DefaultRate is the default request budget in calls per second.
const DefaultRate = 2.5

// Limiter grants at most one acquisition per 1/rate seconds. State is
// owned by the instance; callers pass the limiter explicitly rather than
// sharing it through package globals.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// New creates a limiter for the given rate in calls per second.
// Non-positive rates fall back to DefaultRate.
func New(rate float64) *Limiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Limiter{
		interval: time.Duration(float64(time.Second) / rate),
	}
}

// Acquire blocks until at least the configured interval has elapsed since
// the previous grant, then records the grant. Acquisitions are strictly
// serialized: the lock is held across the wait, so concurrent callers
// queue rather than merely being spaced. Returns the context error if ctx
// is cancelled during the wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	if wait := l.interval - start.Sub(l.last); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.last = time.Now()
	gongRateLimitWaitSeconds.Observe(l.last.Sub(start).Seconds())
	gongRateLimitAcquisitionsTotal.Inc()
	return nil
}

// Interval returns the minimum spacing between grants.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
