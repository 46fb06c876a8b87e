package room

import (
	"time"

	"syncboard/pkg/types"
)

// Change log retention bounds
// FUNCTIONAL DISCOVERY: Entries are kept until every online member has
// acknowledged them, with a hard TTL and size cap so one silent member
// cannot pin unbounded memory
const (
	defaultLogMaxEntries = 1024
	defaultLogTTL        = 5 * time.Minute
)

// logEntry pairs a numbered change with its server-side arrival time
type logEntry struct {
	change   types.Change
	loggedAt time.Time
}

// changeLog is the bounded ordered log of numbered changes for one room
// ARCHITECTURAL DISCOVERY: The log exists only to serve catch-up for
// briefly disconnected members; durable history lives in the archive
type changeLog struct {
	entries    []logEntry
	ids        map[string]struct{} // change IDs currently in the log
	acks       map[string]uint64   // userID -> highest contiguous acked seq
	maxEntries int
	ttl        time.Duration
}

func newChangeLog(maxEntries int, ttl time.Duration) *changeLog {
	if maxEntries <= 0 {
		maxEntries = defaultLogMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultLogTTL
	}
	return &changeLog{
		ids:        make(map[string]struct{}),
		acks:       make(map[string]uint64),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// append adds a numbered change to the log
func (l *changeLog) append(change types.Change) {
	l.entries = append(l.entries, logEntry{change: change, loggedAt: time.Now()})
	l.ids[change.ID] = struct{}{}
}

// contains reports whether a change ID is already in the log
func (l *changeLog) contains(changeID string) bool {
	_, exists := l.ids[changeID]
	return exists
}

// tail returns all logged changes with sequence numbers >= fromSeq
func (l *changeLog) tail(fromSeq uint64) []types.Change {
	var out []types.Change
	for _, entry := range l.entries {
		if entry.change.SequenceNumber >= fromSeq {
			out = append(out, entry.change)
		}
	}
	return out
}

// oldestSeq returns the lowest sequence number still in the log, or 0
// when the log is empty
func (l *changeLog) oldestSeq() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[0].change.SequenceNumber
}

// ack records the highest sequence number a member has confirmed
func (l *changeLog) ack(userID string, seq uint64) {
	if seq > l.acks[userID] {
		l.acks[userID] = seq
	}
}

// ackedSeq returns the highest sequence number a member has confirmed
func (l *changeLog) ackedSeq(userID string) uint64 {
	return l.acks[userID]
}

// forget drops ack state for a member who left for good
func (l *changeLog) forget(userID string) {
	delete(l.acks, userID)
}

// latestForTarget returns the newest logged change for a target with a
// sequence number above afterSeq
// FUNCTIONAL DISCOVERY: Conflict detection only needs the most recent
// competing change; older ones are already superseded by it
func (l *changeLog) latestForTarget(targetID string, afterSeq uint64) (types.Change, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		change := l.entries[i].change
		if change.TargetID == targetID && change.SequenceNumber > afterSeq {
			return change, true
		}
	}
	return types.Change{}, false
}

// evict removes entries every tracked member has acknowledged, entries
// past the TTL and overflow beyond the size cap. Evicted changes are
// returned oldest first for archival.
func (l *changeLog) evict(now time.Time) []types.Change {
	if len(l.entries) == 0 {
		return nil
	}

	// Minimum acked seq across tracked members; with no members tracked
	// nothing is ack-evictable
	var minAck uint64
	first := true
	for _, acked := range l.acks {
		if first || acked < minAck {
			minAck = acked
			first = false
		}
	}
	if first {
		minAck = 0
	}

	cutoff := now.Add(-l.ttl)
	keep := l.entries[:0]
	var evicted []types.Change
	for _, entry := range l.entries {
		ackEvictable := entry.change.SequenceNumber <= minAck
		expired := entry.loggedAt.Before(cutoff)
		if ackEvictable || expired {
			evicted = append(evicted, entry.change)
			continue
		}
		keep = append(keep, entry)
	}
	l.entries = keep

	// Size cap applies after ack and TTL eviction
	if overflow := len(l.entries) - l.maxEntries; overflow > 0 {
		for _, entry := range l.entries[:overflow] {
			evicted = append(evicted, entry.change)
		}
		l.entries = append(l.entries[:0], l.entries[overflow:]...)
	}

	for _, change := range evicted {
		delete(l.ids, change.ID)
	}
	return evicted
}

// size returns the current number of logged changes
func (l *changeLog) size() int {
	return len(l.entries)
}
