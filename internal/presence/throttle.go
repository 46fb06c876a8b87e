package presence

import (
	"sync"
	"time"

	"syncboard/pkg/types"
)

// DefaultCursorInterval bounds cursor broadcasts to one per user per window
const DefaultCursorInterval = 80 * time.Millisecond

// EmitFunc receives the cursor positions that survive throttling
type EmitFunc func(userID string, position types.Position)

// Throttler rate-limits cursor broadcasts per user
// FUNCTIONAL DISCOVERY: Cursor movement produces far more events than any
// other message class; coalescing to the latest position inside each window
// keeps rooms responsive without flooding every member
type Throttler struct {
	interval time.Duration
	emit     EmitFunc

	mu      sync.Mutex
	entries map[string]*throttleEntry
	stopped bool
}

type throttleEntry struct {
	lastEmit time.Time
	pending  *types.Position
	timer    *time.Timer
}

// NewThrottler creates a cursor throttler delivering through emit
func NewThrottler(interval time.Duration, emit EmitFunc) *Throttler {
	if interval <= 0 {
		interval = DefaultCursorInterval
	}
	return &Throttler{
		interval: interval,
		emit:     emit,
		entries:  make(map[string]*throttleEntry),
	}
}

// Submit offers a cursor position for broadcast. Positions inside an open
// window replace any earlier pending position rather than queueing.
func (t *Throttler) Submit(userID string, position types.Position) {
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		return
	}

	entry, exists := t.entries[userID]
	if !exists {
		entry = &throttleEntry{}
		t.entries[userID] = entry
	}

	now := time.Now()
	elapsed := now.Sub(entry.lastEmit)

	// Window open and nothing pending: emit immediately
	if elapsed >= t.interval && entry.pending == nil {
		entry.lastEmit = now
		t.mu.Unlock()
		t.emit(userID, position)
		return
	}

	// TECHNICAL DISCOVERY: Only the latest position matters for a cursor;
	// intermediate positions within the window are dropped, not delayed
	pos := position
	entry.pending = &pos

	if entry.timer == nil {
		delay := t.interval - elapsed
		if delay < 0 {
			delay = 0
		}
		entry.timer = time.AfterFunc(delay, func() { t.flush(userID) })
	}
	t.mu.Unlock()
}

// flush emits the pending position for a user at window close
func (t *Throttler) flush(userID string) {
	t.mu.Lock()
	entry, exists := t.entries[userID]
	if !exists || t.stopped || entry.pending == nil {
		if exists {
			entry.timer = nil
		}
		t.mu.Unlock()
		return
	}

	position := *entry.pending
	entry.pending = nil
	entry.timer = nil
	entry.lastEmit = time.Now()
	t.mu.Unlock()

	t.emit(userID, position)
}

// Forget drops throttle state for a user who left the room
func (t *Throttler) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[userID]; exists {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(t.entries, userID)
	}
}

// Stop cancels all pending flushes
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, entry := range t.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	t.entries = make(map[string]*throttleEntry)
}
