package usecase

import (
	"context"
	"sync"
	"time"
)

// waitPollInterval is how often Wait re-checks admission when the window is
// full.
const waitPollInterval = 1 * time.Second

// RateLimiter bounds outbound price-feed calls to limit requests per rolling
// window. It is the one piece of state shared by every monitor loop, so all
// access is serialized by the mutex.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

// Allow reports whether another call fits in the trailing window. It does not
// count a call; pair it with Record once the call is actually made.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return len(r.calls) < r.limit
}

// Record counts one outbound call against the window.
func (r *RateLimiter) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, time.Now())
}

// tryReserve checks admission and counts the call in one mutex hold, so two
// callers can never both pass the check before either is counted.
func (r *RateLimiter) tryReserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.prune(now)
	if len(r.calls) >= r.limit {
		return false
	}
	r.calls = append(r.calls, now)
	return true
}

// Wait blocks until a slot is reserved or ctx is cancelled. A full window is
// a deferral, never an error. The reservation counts the call; callers must
// not pair Wait with Record.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.tryReserve() {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// prune drops timestamps older than the window. Caller holds the mutex.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.calls) && r.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.calls = append(r.calls[:0], r.calls[i:]...)
	}
}
