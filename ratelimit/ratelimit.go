// Package ratelimit implements the client-side sliding-window rate limit
// the registry imposes: at most Max requests within any rolling Window.
// Callers past the cap are delayed, never rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultWindow is the registry's rolling window length.
	DefaultWindow = 5 * time.Second

	// DefaultMax is the registry's request cap per window.
	DefaultMax = 90

	// slack is added to every wait so a freed slot is observed strictly
	// after the oldest request leaves the window.
	slack = 50 * time.Millisecond
)

// Limiter enforces a sliding time-window request cap. Acquire blocks the
// caller until a slot is available; concurrent callers serialize on the
// window accounting and none may bypass the count.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps []time.Time

	now func() time.Time
}

// New creates a Limiter. Non-positive arguments fall back to the
// registry defaults.
func New(window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Limiter{
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Acquire blocks until a request slot is available within the window,
// then records the request. It returns early with the context's error if
// ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.stamps[0].Add(l.window).Sub(now) + slack
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InFlight returns the number of requests currently accounted in the
// window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps that have left the window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.stamps) && now.Sub(l.stamps[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[cut:]...)
	}
}
