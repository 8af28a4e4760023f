package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides if a request or bridge message from key should be allowed.
// Keys are client IPs for the HTTP API and steam ids for bridge messages.
// Allow returns (allowed, retryAfterSeconds); when allowed is false,
// retryAfterSeconds may be set for the Retry-After response header (0 = omit).
type Limiter interface {
	Allow(key string) (allowed bool, retryAfterSec int)
}

// Noop allows all requests.
type Noop struct{}

func (Noop) Allow(key string) (bool, int) { return true, 0 }

// InMemory is a sliding-window rate limiter per key (single-instance only).
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	nowFunc func() time.Time
}

// NewInMemory allows up to limit requests per key per window.
func NewInMemory(limit int, window time.Duration) *InMemory {
	return &InMemory{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		nowFunc: time.Now,
	}
}

func (r *InMemory) Allow(key string) (allowed bool, retryAfterSec int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFunc()
	times := pruneBefore(r.windows[key], now.Add(-r.window))
	if len(times) >= r.limit {
		retryAfter := times[0].Add(r.window).Sub(now)
		if retryAfter > 0 {
			retryAfterSec = int(retryAfter.Seconds())
			if retryAfterSec < 1 {
				retryAfterSec = 1
			}
		}
		r.windows[key] = times
		return false, retryAfterSec
	}
	r.windows[key] = append(times, now)
	return true, 0
}

// Forget drops the window for key, freeing its memory. Called when a bridge
// connection for that identity goes away.
func (r *InMemory) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, key)
}

// pruneBefore drops timestamps at or before cutoff, reusing the backing array.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for _, t := range times {
		if t.After(cutoff) {
			times[i] = t
			i++
		}
	}
	return times[:i]
}
