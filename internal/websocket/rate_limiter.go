package websocket

import (
	"sync"
	"time"
)

// Default inbound budget per session. Cursor traffic is already throttled
// client-side to roughly 12 updates per second, so 20 messages per second
// leaves headroom for bursts of change proposals on top of cursor flow.
const (
	defaultRateLimit  = 1200
	defaultRateWindow = time.Minute
)

// rateLimiter caps inbound message volume per session
// ARCHITECTURAL DISCOVERY: Per-session state tracking with explicit
// forget-on-disconnect prevents memory leaks without a cleanup goroutine
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateWindow
}

// rateWindow tracks message volume for a single session
type rateWindow struct {
	count int
	start time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateWindow),
	}
}

// allow reports whether the session may send another message. The window
// resets in full once it expires; sessions at the cap are refused until then.
func (rl *rateLimiter) allow(sessionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	bucket, exists := rl.buckets[sessionID]
	if !exists {
		rl.buckets[sessionID] = &rateWindow{count: 1, start: now}
		return true
	}

	if now.Sub(bucket.start) >= rl.window {
		bucket.count = 1
		bucket.start = now
		return true
	}

	if bucket.count >= rl.limit {
		return false
	}

	bucket.count++
	return true
}

// forget drops tracking state for a disconnected session
func (rl *rateLimiter) forget(sessionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, sessionID)
}
