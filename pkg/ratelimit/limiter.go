// Package ratelimit implements the shared request budget: a fixed-window
// permit pool granting at most N acquisitions per rolling ~1-second window.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limit gating.
var (
	permitsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yt_rate_limit_permits_granted_total",
		Help: "Total permits granted by the rate limiter",
	})

	permitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yt_rate_limit_wait_seconds",
		Help:    "Time callers spent blocked waiting for a permit",
		Buckets: []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// window is the permit pool reset interval.
const window = time.Second

// Limiter grants at most rps permits per window. When the current window's
// pool is exhausted, Acquire blocks until the window rolls over and the
// pool is replenished. One Limiter instance is constructed per run and
// shared by reference across all concurrent channel pipelines.
type Limiter struct {
	rps    int
	logger zerolog.Logger

	// ch carries the current window's permits; reset swaps it under mu.
	ch        chan struct{}
	lastReset time.Time
	resetMu   chan struct{} // 1-buffered, acts as a mutex usable in select
}

// NewLimiter creates a limiter granting up to rps permits per second.
// Values below 1 are clamped to 1.
func NewLimiter(rps int) *Limiter {
	if rps < 1 {
		rps = 1
	}
	l := &Limiter{
		rps:       rps,
		logger:    log.With().Str("component", "ratelimit").Logger(),
		lastReset: time.Now(),
		resetMu:   make(chan struct{}, 1),
	}
	l.resetMu <- struct{}{}
	l.ch = l.newPool()
	return l
}

func (l *Limiter) newPool() chan struct{} {
	ch := make(chan struct{}, l.rps)
	for i := 0; i < l.rps; i++ {
		ch <- struct{}{}
	}
	return ch
}

// Acquire blocks until a permit is available from the current window's pool
// or ctx is done. Permits are never returned; the pool is simply replaced
// when a window elapses.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	for {
		// Take the reset lock so only one caller swaps the pool.
		select {
		case <-l.resetMu:
		case <-ctx.Done():
			return ctx.Err()
		}

		now := time.Now()
		elapsed := now.Sub(l.lastReset)
		if elapsed >= window {
			l.ch = l.newPool()
			l.lastReset = now
			elapsed = 0
			l.logger.Debug().Int("rps", l.rps).Msg("Permit pool reset")
		}
		pool := l.ch
		l.resetMu <- struct{}{}

		// Fast path: a permit is free in the current window.
		select {
		case <-pool:
			permitsGrantedTotal.Inc()
			permitWaitSeconds.Observe(time.Since(start).Seconds())
			return nil
		default:
		}

		// Window exhausted: permits are never returned within a window, so
		// sleep until it rolls over and re-check.
		wait := window - elapsed
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Budget returns the configured permits-per-second budget.
func (l *Limiter) Budget() int {
	return l.rps
}
