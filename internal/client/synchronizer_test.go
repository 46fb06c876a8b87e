package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

type sentFrame struct {
	msgType string
	payload interface{}
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentFrame
	errFn func(msgType string) error
}

func (f *fakeSender) Send(msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFn != nil {
		if err := f.errFn(msgType); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentFrame{msgType: msgType, payload: payload})
	return nil
}

func (f *fakeSender) framesOf(msgType string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, frame := range f.sent {
		if frame.msgType == msgType {
			out = append(out, frame)
		}
	}
	return out
}

func waitSent(t *testing.T, sender *fakeSender, msgType string, count int) []sentFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := sender.framesOf(msgType)
		if len(frames) >= count {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d %q frames, have %d",
		count, msgType, len(sender.framesOf(msgType)))
	return nil
}

func numbered(id string, seq uint64) types.Change {
	return types.Change{
		ID:             id,
		Type:           types.ChangeNodeAdd,
		TargetID:       "n-" + id,
		Payload:        map[string]interface{}{"label": id},
		OriginUserID:   "alice",
		SequenceNumber: seq,
		Timestamp:      time.Now().UTC(),
	}
}

func TestSynchronizerViewerRejectedLocally(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleViewer)
	defer s.Stop()

	err := s.ProposeChange(types.Change{Type: types.ChangeNodeAdd, TargetID: "n1",
		Payload: map[string]interface{}{"label": "x"}})
	if err != interfaces.ErrPermissionDenied {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}

	time.Sleep(3 * defaultCoalesceWindow)
	if frames := sender.framesOf(types.MsgSyncChanges); len(frames) != 0 {
		t.Error("Viewer proposal must never reach the wire")
	}
}

func TestSynchronizerCoalescesProposals(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	for _, label := range []string{"a", "b", "c"} {
		err := s.ProposeChange(types.Change{Type: types.ChangeNodeAdd, TargetID: "n-" + label,
			Payload: map[string]interface{}{"label": label}})
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
	}

	frames := waitSent(t, sender, types.MsgSyncChanges, 1)
	if len(frames) != 1 {
		t.Fatalf("Rapid proposals must coalesce into one frame, got %d", len(frames))
	}
	payload := frames[0].payload.(types.SyncChangesPayload)
	if len(payload.Changes) != 3 {
		t.Fatalf("Expected 3 coalesced changes, got %d", len(payload.Changes))
	}
	for _, change := range payload.Changes {
		if change.ID == "" {
			t.Error("Proposals must carry a minted change ID")
		}
	}
}

func TestSynchronizerMergesSameTargetUpdates(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	// A drag stream emits many position updates for one node in quick
	// succession; only the newest values should reach the wire
	positions := []map[string]interface{}{
		{"x": 10.0, "y": 10.0},
		{"x": 20.0, "y": 15.0},
		{"x": 30.0, "y": 25.0},
	}
	for _, pos := range positions {
		err := s.ProposeChange(types.Change{Type: types.ChangeNodeUpdate, TargetID: "n1", Payload: pos})
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
	}
	// An update to a different target rides in the same batch unmerged
	err := s.ProposeChange(types.Change{Type: types.ChangeNodeUpdate, TargetID: "n2",
		Payload: map[string]interface{}{"x": 1.0}})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	frames := waitSent(t, sender, types.MsgSyncChanges, 1)
	payload := frames[0].payload.(types.SyncChangesPayload)
	if len(payload.Changes) != 2 {
		t.Fatalf("Expected merged batch of 2 changes, got %d", len(payload.Changes))
	}
	merged := payload.Changes[0]
	if merged.TargetID != "n1" {
		t.Fatalf("Expected merged change for n1 first, got %s", merged.TargetID)
	}
	if merged.Payload["x"] != 30.0 || merged.Payload["y"] != 25.0 {
		t.Errorf("Merged payload must carry the latest values, got %v", merged.Payload)
	}
}

func TestSynchronizerAppliesInOrder(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	var applied []uint64
	s.OnChangeApplied(func(change types.Change) {
		applied = append(applied, change.SequenceNumber)
	})

	s.ApplyRemote([]types.Change{numbered("c1", 1), numbered("c2", 2)})

	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("Expected in-order application [1 2], got %v", applied)
	}
	if s.AppliedSeq() != 2 {
		t.Errorf("Expected applied seq 2, got %d", s.AppliedSeq())
	}

	acks := sender.framesOf(types.MsgAck)
	if len(acks) == 0 {
		t.Fatal("Expected an ack after applying")
	}
	last := acks[len(acks)-1].payload.(types.AckPayload)
	if last.Seq != 2 {
		t.Errorf("Expected ack for seq 2, got %d", last.Seq)
	}
}

func TestSynchronizerBuffersGaps(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	var applied []uint64
	s.OnChangeApplied(func(change types.Change) {
		applied = append(applied, change.SequenceNumber)
	})

	// Seq 2 arrives before seq 1 and must wait
	s.ApplyRemote([]types.Change{numbered("c2", 2)})
	if len(applied) != 0 {
		t.Fatalf("Gapped change must not apply, got %v", applied)
	}

	s.ApplyRemote([]types.Change{numbered("c1", 1)})
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("Expected gap drain in order [1 2], got %v", applied)
	}
}

func TestSynchronizerIdempotentByID(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	count := 0
	s.OnChangeApplied(func(types.Change) { count++ })

	change := numbered("c1", 1)
	s.ApplyRemote([]types.Change{change})
	s.ApplyRemote([]types.Change{change})

	if count != 1 {
		t.Errorf("Replayed change must apply once, got %d applications", count)
	}
}

func TestSynchronizerGapTimeoutRequestsFullSync(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	s.gapTimeout = 50 * time.Millisecond
	defer s.Stop()

	s.ApplyRemote([]types.Change{numbered("c3", 3)})

	frames := waitSent(t, sender, types.MsgRequestFullSync, 1)
	payload := frames[0].payload.(types.RequestFullSyncPayload)
	if payload.FromSeq != 1 {
		t.Errorf("Expected full sync request from seq 1, got %d", payload.FromSeq)
	}
}

func TestSynchronizerFullSyncResetsBaseline(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	defer s.Stop()

	var snapshotSeq uint64
	s.OnSnapshot(func(snapshot json.RawMessage, seq uint64) { snapshotSeq = seq })
	var applied []uint64
	s.OnChangeApplied(func(change types.Change) {
		applied = append(applied, change.SequenceNumber)
	})

	// A stale gap entry must not survive the reset
	s.ApplyRemote([]types.Change{numbered("c9", 9)})

	s.ApplyFullSync(types.FullSyncPayload{
		Snapshot:    []byte(`{"nodes":{},"edges":{}}`),
		SnapshotSeq: 5,
		Tail:        []types.Change{numbered("c6", 6)},
	})

	if snapshotSeq != 5 {
		t.Errorf("Expected snapshot callback at seq 5, got %d", snapshotSeq)
	}
	if len(applied) != 1 || applied[0] != 6 {
		t.Errorf("Expected tail application [6], got %v", applied)
	}
	if s.AppliedSeq() != 6 {
		t.Errorf("Expected applied seq 6, got %d", s.AppliedSeq())
	}
}

func TestSynchronizerStopRejectsProposals(t *testing.T) {
	sender := &fakeSender{}
	s := NewSynchronizer(sender, types.RoleEditor)
	s.Stop()

	err := s.ProposeChange(types.Change{Type: types.ChangeNodeAdd, TargetID: "n1",
		Payload: map[string]interface{}{"label": "x"}})
	if err != ErrSessionClosed {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
}
