package room

import (
	"fmt"
	"testing"
	"time"

	"syncboard/pkg/types"
)

func loggedChange(seq uint64, targetID, origin string) types.Change {
	return types.Change{
		ID:             fmt.Sprintf("change-%d", seq),
		Type:           types.ChangeNodeUpdate,
		TargetID:       targetID,
		Payload:        map[string]interface{}{"label": "v"},
		OriginUserID:   origin,
		SequenceNumber: seq,
		Timestamp:      time.Now().UTC(),
	}
}

func TestChangeLogTail(t *testing.T) {
	log := newChangeLog(0, 0)
	for seq := uint64(1); seq <= 5; seq++ {
		log.append(loggedChange(seq, "n1", "alice"))
	}

	tail := log.tail(3)
	if len(tail) != 3 {
		t.Fatalf("Expected 3 changes from seq 3, got %d", len(tail))
	}
	if tail[0].SequenceNumber != 3 || tail[2].SequenceNumber != 5 {
		t.Errorf("Tail out of order: first=%d last=%d", tail[0].SequenceNumber, tail[2].SequenceNumber)
	}

	if got := log.tail(6); got != nil {
		t.Errorf("Expected empty tail past the head, got %d changes", len(got))
	}
}

func TestChangeLogOldestSeq(t *testing.T) {
	log := newChangeLog(0, 0)
	if got := log.oldestSeq(); got != 0 {
		t.Errorf("Empty log should report oldest 0, got %d", got)
	}

	log.append(loggedChange(7, "n1", "alice"))
	log.append(loggedChange(8, "n1", "alice"))
	if got := log.oldestSeq(); got != 7 {
		t.Errorf("Expected oldest seq 7, got %d", got)
	}
}

func TestChangeLogAckTracking(t *testing.T) {
	log := newChangeLog(0, 0)
	log.ack("alice", 4)
	log.ack("alice", 2) // stale ack must not regress
	if got := log.ackedSeq("alice"); got != 4 {
		t.Errorf("Expected acked seq 4, got %d", got)
	}

	log.forget("alice")
	if got := log.ackedSeq("alice"); got != 0 {
		t.Errorf("Forgotten member should ack from 0, got %d", got)
	}
}

func TestChangeLogLatestForTarget(t *testing.T) {
	log := newChangeLog(0, 0)
	log.append(loggedChange(1, "n1", "alice"))
	log.append(loggedChange(2, "n2", "bob"))
	log.append(loggedChange(3, "n1", "carol"))

	change, found := log.latestForTarget("n1", 0)
	if !found {
		t.Fatal("Expected a competing change for n1")
	}
	if change.SequenceNumber != 3 || change.OriginUserID != "carol" {
		t.Errorf("Expected newest n1 change (seq 3 by carol), got seq %d by %s",
			change.SequenceNumber, change.OriginUserID)
	}

	// A proposer that already acknowledged seq 3 sees no competition
	if _, found := log.latestForTarget("n1", 3); found {
		t.Error("Acknowledged changes must not register as conflicts")
	}

	if _, found := log.latestForTarget("n9", 0); found {
		t.Error("Unknown target must not match")
	}
}

func TestChangeLogContains(t *testing.T) {
	log := newChangeLog(0, time.Hour)
	log.append(loggedChange(1, "n1", "alice"))

	if !log.contains("change-1") {
		t.Error("Logged change ID must be reported as present")
	}
	if log.contains("change-99") {
		t.Error("Unknown change ID must not be reported as present")
	}

	// Eviction releases the ID tracking along with the entry
	log.ack("alice", 1)
	log.evict(time.Now())
	if log.contains("change-1") {
		t.Error("Evicted change ID must leave the index")
	}
}

func TestChangeLogEvictByAck(t *testing.T) {
	log := newChangeLog(0, time.Hour)
	for seq := uint64(1); seq <= 4; seq++ {
		log.append(loggedChange(seq, "n1", "alice"))
	}
	log.ack("alice", 3)
	log.ack("bob", 2)

	evicted := log.evict(time.Now())
	if len(evicted) != 2 {
		t.Fatalf("Expected eviction up to min ack 2, got %d evicted", len(evicted))
	}
	if evicted[0].SequenceNumber != 1 || evicted[1].SequenceNumber != 2 {
		t.Errorf("Evicted wrong entries: %d, %d", evicted[0].SequenceNumber, evicted[1].SequenceNumber)
	}
	if log.oldestSeq() != 3 {
		t.Errorf("Expected oldest remaining seq 3, got %d", log.oldestSeq())
	}
}

func TestChangeLogEvictByTTL(t *testing.T) {
	log := newChangeLog(0, time.Minute)
	log.append(loggedChange(1, "n1", "alice"))
	log.append(loggedChange(2, "n1", "alice"))
	log.ack("bob", 0) // one silent member pins ack-based eviction

	evicted := log.evict(time.Now().Add(2 * time.Minute))
	if len(evicted) != 2 {
		t.Fatalf("TTL must evict despite a silent member, got %d evicted", len(evicted))
	}
	if log.size() != 0 {
		t.Errorf("Expected empty log after TTL eviction, got %d entries", log.size())
	}
}

func TestChangeLogEvictBySizeCap(t *testing.T) {
	log := newChangeLog(3, time.Hour)
	for seq := uint64(1); seq <= 5; seq++ {
		log.append(loggedChange(seq, "n1", "alice"))
	}
	log.ack("bob", 0)

	evicted := log.evict(time.Now())
	if len(evicted) != 2 {
		t.Fatalf("Expected 2 overflow evictions, got %d", len(evicted))
	}
	if log.size() != 3 {
		t.Errorf("Expected log trimmed to cap 3, got %d", log.size())
	}
	if log.oldestSeq() != 3 {
		t.Errorf("Cap must drop oldest first, oldest now %d", log.oldestSeq())
	}
}
