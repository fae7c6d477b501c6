// Package ratelimit spaces request starts so that consecutive fetches begin
// at least a configured delay apart. The in-process Limiter serves a single
// fetcher (and all of its workers); RedisGate shares one marker across
// processes.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request spacing.
var (
	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowzz_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a request slot by gate type",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"gate"})

	gateErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_rate_limit_errors_total",
		Help: "Total number of failed slot reservations by gate type",
	}, []string{"gate"})
)

// Gate blocks until the caller may start its next request.
// Implementations must be safe for concurrent use.
type Gate interface {
	Wait(ctx context.Context) error
}

// Limiter is an in-process Gate that lets one request start every delay.
//
// The marker is the time of the last granted start, not a booked future
// slot: a waiter sleeps, then re-checks under the lock, so a late timer
// never lets the next start follow the previous one closer than delay.
type Limiter struct {
	delay  time.Duration
	logger zerolog.Logger

	mu        sync.Mutex
	lastStart time.Time
	// onGrant, if set, is called under the lock with every granted start.
	onGrant func(time.Time)

	// waitLog throttles the per-wait debug line.
	waitLog rate.Sometimes
}

// NewLimiter creates a limiter for the given minimum delay between request
// starts. A delay of zero disables spacing.
func NewLimiter(delay time.Duration, logger zerolog.Logger) (*Limiter, error) {
	if delay < 0 {
		return nil, fmt.Errorf("delay must be >= 0 (got %s)", delay)
	}

	return &Limiter{
		delay:   delay,
		logger:  logger,
		waitLog: rate.Sometimes{First: 1, Interval: time.Second},
	}, nil
}

// Wait blocks until a request may start and records the start time.
// Cancellation while waiting consumes nothing.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for request slot: %w", err)
	}

	begin := time.Now()
	for {
		remaining := l.tryGrant()
		if remaining <= 0 {
			break
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for request slot: %w", ctx.Err())
		case <-timer.C:
		}
	}

	waited := time.Since(begin)
	waitSeconds.WithLabelValues("local").Observe(waited.Seconds())

	if waited > 0 {
		l.waitLog.Do(func() {
			l.logger.Debug().
				Dur("waited", waited).
				Dur("delay", l.delay).
				Msg("Request slot granted")
		})
	}
	return nil
}

// tryGrant records a start and returns 0 when delay has passed since the
// last one. Otherwise it returns the time left and records nothing.
func (l *Limiter) tryGrant() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.lastStart.IsZero() {
		if remaining := l.lastStart.Add(l.delay).Sub(now); remaining > 0 {
			return remaining
		}
	}
	l.lastStart = now
	if l.onGrant != nil {
		l.onGrant(now)
	}
	return 0
}

// Delay returns the configured minimum spacing.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// LastStart returns when the most recent slot was granted, or the zero time.
func (l *Limiter) LastStart() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastStart
}
