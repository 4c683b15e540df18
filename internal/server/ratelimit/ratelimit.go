// Package ratelimit guards the login endpoint with a fixed-window per-IP
// limiter and progressive bans for repeated failures.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window per-client rate limiter.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
}

// NewLimiter allows maxRequests per window for each client.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    map[string][]time.Time{},
	}
}

// Allow records a request for the client and reports whether it fits in the
// current window.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	kept := l.requests[clientID][:0]
	for _, ts := range l.requests[clientID] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.requests[clientID] = kept
		return false
	}
	l.requests[clientID] = append(kept, now)
	return true
}
