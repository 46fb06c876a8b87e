package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Synchronizer timing defaults
const (
	defaultCoalesceWindow = 50 * time.Millisecond
	defaultGapTimeout     = 2 * time.Second
)

// sender abstracts the transport the synchronizer talks through
type sender interface {
	Send(msgType string, payload interface{}) error
}

// Synchronizer keeps a local model in lockstep with the room's total order
// ARCHITECTURAL DISCOVERY: The client never applies a change out of
// sequence; anything past a gap waits in a buffer until the gap closes or
// a full sync resets the baseline
type Synchronizer struct {
	transport sender

	mu             sync.Mutex
	role           string
	appliedSeq     uint64
	appliedIDs     map[string]struct{}
	gapBuffer      map[uint64]types.Change
	conflicts      map[string]types.Conflict
	pending        []types.Change
	flushTimer     *time.Timer
	gapTimer       *time.Timer
	coalesceWindow time.Duration
	gapTimeout     time.Duration
	onApplied      func(types.Change)
	onSnapshot     func(snapshot json.RawMessage, seq uint64)
	stopped        bool
}

// NewSynchronizer creates a synchronizer for one diagram session
func NewSynchronizer(transport sender, role string) *Synchronizer {
	return &Synchronizer{
		transport:      transport,
		role:           role,
		appliedIDs:     make(map[string]struct{}),
		gapBuffer:      make(map[uint64]types.Change),
		conflicts:      make(map[string]types.Conflict),
		coalesceWindow: defaultCoalesceWindow,
		gapTimeout:     defaultGapTimeout,
	}
}

// OnChangeApplied registers the callback invoked for every in-order change
func (s *Synchronizer) OnChangeApplied(fn func(types.Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApplied = fn
}

// OnSnapshot registers the callback invoked when a full sync resets state
func (s *Synchronizer) OnSnapshot(fn func(snapshot json.RawMessage, seq uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSnapshot = fn
}

// SetRole updates the session role after a server-side role change
func (s *Synchronizer) SetRole(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// AppliedSeq returns the highest contiguously applied sequence number
func (s *Synchronizer) AppliedSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedSeq
}

// ProposeChange queues a local mutation for the next coalesced batch
// FUNCTIONAL DISCOVERY: Role enforcement happens locally before any bytes
// move so a viewer's UI learns about the rejection immediately
func (s *Synchronizer) ProposeChange(change types.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSessionClosed
	}
	if !types.CanEdit(s.role) {
		return interfaces.ErrPermissionDenied
	}

	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	// Drag streams collapse: successive updates to one target inside the
	// window merge field-wise into a single proposal, latest value wins
	if isUpdateType(change.Type) {
		for i := len(s.pending) - 1; i >= 0; i-- {
			prev := &s.pending[i]
			if prev.TargetID != change.TargetID || prev.Type != change.Type {
				continue
			}
			merged := make(map[string]interface{}, len(prev.Payload)+len(change.Payload))
			for key, value := range prev.Payload {
				merged[key] = value
			}
			for key, value := range change.Payload {
				merged[key] = value
			}
			prev.Payload = merged
			prev.Timestamp = change.Timestamp
			return nil
		}
	}

	if change.ID == "" {
		change.ID = uuid.New().String()
	}

	s.pending = append(s.pending, change)
	if s.flushTimer == nil {
		// Rapid edits within the window ride in one sync_changes frame
		s.flushTimer = time.AfterFunc(s.coalesceWindow, s.flushPending)
	}
	return nil
}

func isUpdateType(changeType string) bool {
	return changeType == types.ChangeNodeUpdate || changeType == types.ChangeEdgeUpdate
}

// flushPending ships the coalesced proposal batch to the room
func (s *Synchronizer) flushPending() {
	s.mu.Lock()
	if s.stopped || len(s.pending) == 0 {
		s.flushTimer = nil
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = nil
	s.flushTimer = nil
	s.mu.Unlock()

	// Send outside the lock; a slow transport must not stall proposals
	_ = s.transport.Send(types.MsgSyncChanges, types.SyncChangesPayload{Changes: batch})
}

// ApplyRemote folds room-numbered changes into the local model in strict
// sequence order, buffering anything past a gap
func (s *Synchronizer) ApplyRemote(changes []types.Change) {
	s.mu.Lock()

	for _, change := range changes {
		if change.SequenceNumber <= s.appliedSeq {
			continue // Replay of something already applied
		}
		if _, applied := s.appliedIDs[change.ID]; applied {
			continue
		}
		if change.SequenceNumber == s.appliedSeq+1 {
			s.applyLocked(change)
			s.drainGapLocked()
			continue
		}
		// Out of order: hold it until the missing changes arrive
		s.gapBuffer[change.SequenceNumber] = change
		if s.gapTimer == nil {
			s.gapTimer = time.AfterFunc(s.gapTimeout, s.requestFullSync)
		}
	}

	if len(s.gapBuffer) == 0 && s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}

	acked := s.appliedSeq
	s.mu.Unlock()

	if acked > 0 {
		_ = s.transport.Send(types.MsgAck, types.AckPayload{Seq: acked})
	}
}

// applyLocked delivers one change and advances the applied baseline
func (s *Synchronizer) applyLocked(change types.Change) {
	s.appliedSeq = change.SequenceNumber
	s.appliedIDs[change.ID] = struct{}{}
	if s.onApplied != nil {
		s.onApplied(change)
	}
}

// drainGapLocked applies buffered changes made contiguous by a new arrival
func (s *Synchronizer) drainGapLocked() {
	for {
		change, exists := s.gapBuffer[s.appliedSeq+1]
		if !exists {
			return
		}
		delete(s.gapBuffer, s.appliedSeq+1)
		s.applyLocked(change)
	}
}

// requestFullSync fires when a sequence gap never closed
// FUNCTIONAL DISCOVERY: A gap that outlives its timeout means the missing
// change is not coming on this transport; only a snapshot can recover
func (s *Synchronizer) requestFullSync() {
	s.mu.Lock()
	if s.stopped || len(s.gapBuffer) == 0 {
		s.gapTimer = nil
		s.mu.Unlock()
		return
	}
	fromSeq := s.appliedSeq + 1
	s.gapTimer = nil
	s.mu.Unlock()

	_ = s.transport.Send(types.MsgRequestFullSync, types.RequestFullSyncPayload{FromSeq: fromSeq})
}

// ApplyFullSync resets the local baseline from a snapshot and its tail
func (s *Synchronizer) ApplyFullSync(payload types.FullSyncPayload) {
	s.mu.Lock()

	s.appliedSeq = payload.SnapshotSeq
	s.gapBuffer = make(map[uint64]types.Change)
	s.appliedIDs = make(map[string]struct{})
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	if s.onSnapshot != nil {
		s.onSnapshot(payload.Snapshot, payload.SnapshotSeq)
	}
	for _, change := range payload.Tail {
		if change.SequenceNumber == s.appliedSeq+1 {
			s.applyLocked(change)
		}
	}

	acked := s.appliedSeq
	s.mu.Unlock()

	if acked > 0 {
		_ = s.transport.Send(types.MsgAck, types.AckPayload{Seq: acked})
	}
}

// Stop drops pending proposals and cancels all timers
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	s.pending = nil
}
