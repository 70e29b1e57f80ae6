// Package ratelimit enforces the per-connection inbound frame ceiling from
// §10.4: roughly 50 messages/second sustained, via a token bucket per user
// id. Per-client state lives in a map guarded by one lock; Forget drops a
// user's entry when its connection closes and Cleanup sweeps stale entries
// when called, the same shape the teacher's router rate limiter uses for
// its own sliding-window tracking — only the limiting algorithm itself
// changes, from a hand-rolled window counter to golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client's bucket is kept before Cleanup
// reclaims it; five minutes, far longer than the one-second enforcement
// window, gives room for bursty-but-legitimate reconnect patterns.
const staleAfter = 5 * time.Minute

type client struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// Limiter is a per-user-id token bucket limiter.
type Limiter struct {
	mu             sync.Mutex
	clients        map[string]*client
	ratePerSecond  float64
	burst          int
}

// New constructs a Limiter allowing ratePerSecond sustained messages per
// user id with a burst of up to burst messages.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		clients:       make(map[string]*client),
		ratePerSecond: ratePerSecond,
		burst:         burst,
	}
}

// Allow reports whether userID may send one more frame right now. The
// first call for a user id always succeeds and allocates its bucket.
func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	c, ok := l.clients[userID]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)}
		l.clients[userID] = c
	}
	c.lastSeenAt = time.Now()
	l.mu.Unlock()

	return c.limiter.Allow()
}

// Cleanup removes buckets for users not seen in staleAfter, bounding
// memory growth across the lifetime of a long-running process.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for userID, c := range l.clients {
		if now.Sub(c.lastSeenAt) > staleAfter {
			delete(l.clients, userID)
		}
	}
}

// Forget drops userID's bucket immediately, called when a connection
// closes so a reconnecting user starts with a fresh allowance.
func (l *Limiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, userID)
}
