package client

import (
	"math/rand"
	"sync"
	"time"
)

// Reconnect backoff defaults
const (
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
)

// backoff produces capped exponential delays with full jitter
// TECHNICAL DISCOVERY: Full jitter spreads reconnect storms across the
// whole window; deterministic exponential delays synchronize clients that
// all lost the same server
type backoff struct {
	mu      sync.Mutex
	base    time.Duration
	cap     time.Duration
	attempt int
	rng     *rand.Rand
}

func newBackoff(base, cap time.Duration) *backoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	return &backoff{
		base: base,
		cap:  cap,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the delay before the next reconnect attempt
func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	ceiling := b.base
	for i := 0; i < b.attempt && ceiling < b.cap; i++ {
		ceiling *= 2
	}
	if ceiling > b.cap {
		ceiling = b.cap
	}
	b.attempt++

	if ceiling <= 0 {
		return 0
	}
	return time.Duration(b.rng.Int63n(int64(ceiling) + 1))
}

// reset clears the attempt counter after a successful connection
func (b *backoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// attempts returns how many delays have been handed out since the last reset
func (b *backoff) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
