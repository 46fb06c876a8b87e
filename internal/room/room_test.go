package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"syncboard/internal/model"
	"syncboard/pkg/types"
)

// fakeConn captures everything a room writes to one member
type fakeConn struct {
	mu        sync.Mutex
	userID    string
	name      string
	role      string
	diagramID string
	sessionID string
	authed    bool
	closed    bool
	frames    []*types.Envelope
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{userID: userID, sessionID: userID + "-session"}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	env, ok := v.(*types.Envelope)
	if !ok {
		return fmt.Errorf("unexpected write type %T", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) GetUserID() string    { return c.userID }
func (c *fakeConn) GetRole() string      { return c.role }
func (c *fakeConn) GetDiagramID() string { return c.diagramID }
func (c *fakeConn) GetSessionID() string { return c.sessionID }

func (c *fakeConn) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *fakeConn) SetCredentials(userID, name, role, diagramID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.name = name
	c.role = role
	c.diagramID = diagramID
	c.authed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) framesOfType(msgType string) []*types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.Envelope
	for _, env := range c.frames {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

// waitFrames polls until a connection has received count frames of a type
func waitFrames(t *testing.T, conn *fakeConn, msgType string, count int) []*types.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := conn.framesOfType(msgType)
		if len(frames) >= count {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d %q frames on %s, have %d",
		count, msgType, conn.userID, len(conn.framesOfType(msgType)))
	return nil
}

func waitFrame(t *testing.T, conn *fakeConn, msgType string) *types.Envelope {
	t.Helper()
	return waitFrames(t, conn, msgType, 1)[0]
}

func newTestRoom(t *testing.T) (*Room, *model.Store) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CursorInterval = 10 * time.Millisecond
	store := model.NewStore(nil)
	r, err := newRoom(context.Background(), "diagram-1", cfg, store, nil)
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	t.Cleanup(r.Close)
	return r, store
}

func admitMember(t *testing.T, r *Room, userID, role string) *fakeConn {
	t.Helper()
	conn := newFakeConn(userID)
	if err := conn.SetCredentials(userID, userID, role, r.DiagramID()); err != nil {
		t.Fatalf("Failed to set credentials: %v", err)
	}
	if err := r.admit(conn, userID, role); err != nil {
		t.Fatalf("Failed to admit %s: %v", userID, err)
	}
	return conn
}

func submit(t *testing.T, r *Room, userID, msgType string, payload interface{}) {
	t.Helper()
	env, err := types.NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("Failed to build %s envelope: %v", msgType, err)
	}
	if err := r.Submit(userID, env); err != nil {
		t.Fatalf("Failed to submit %s: %v", msgType, err)
	}
}

func proposeChange(t *testing.T, r *Room, userID, changeID, changeType, targetID string, payload map[string]interface{}) {
	t.Helper()
	submit(t, r, userID, types.MsgSyncChanges, types.SyncChangesPayload{
		Changes: []types.Change{{
			ID:       changeID,
			Type:     changeType,
			TargetID: targetID,
			Payload:  payload,
		}},
	})
}

func decodePayload(t *testing.T, env *types.Envelope, v interface{}) {
	t.Helper()
	if err := env.Decode(v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Type, err)
	}
}

func TestRoomJoinHandshake(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleOwner)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	// Alice sees bob arrive
	env := waitFrame(t, alice, types.MsgUserJoined)
	var joined types.UserJoinedPayload
	decodePayload(t, env, &joined)
	if joined.User.ID != "bob" {
		t.Errorf("Expected user_joined for bob, got %s", joined.User.ID)
	}

	submit(t, r, "bob", types.MsgJoin, types.JoinPayload{DiagramID: "diagram-1", UserID: "bob"})

	env = waitFrame(t, bob, types.MsgJoined)
	var reply types.JoinedPayload
	decodePayload(t, env, &reply)
	if reply.Role != types.RoleEditor {
		t.Errorf("Expected editor role in joined, got %s", reply.Role)
	}
	if reply.SessionID != bob.GetSessionID() {
		t.Errorf("Expected session ID %s, got %s", bob.GetSessionID(), reply.SessionID)
	}
	if len(reply.Users) != 2 {
		t.Errorf("Expected 2 users in roster, got %d", len(reply.Users))
	}
	if reply.BaselineSeq != 0 {
		t.Errorf("Fresh room must report baseline 0, got %d", reply.BaselineSeq)
	}
}

func TestRoomChangeOrdering(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	proposeChange(t, r, "bob", "c2", types.ChangeNodeAdd, "n2", map[string]interface{}{"label": "db"})

	// Both members, including each origin, see both changes in order
	for _, conn := range []*fakeConn{alice, bob} {
		frames := waitFrames(t, conn, types.MsgChangesReceived, 2)
		var seqs []uint64
		for _, env := range frames {
			var payload types.ChangesReceivedPayload
			decodePayload(t, env, &payload)
			for _, change := range payload.Changes {
				seqs = append(seqs, change.SequenceNumber)
			}
		}
		if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
			t.Errorf("Member %s saw sequence %v, want [1 2]", conn.userID, seqs)
		}
	}

	if got := store.LastSeq("diagram-1"); got != 2 {
		t.Errorf("Model should have folded seq 2, got %d", got)
	}
}

func TestRoomViewerCannotPropose(t *testing.T) {
	r, store := newTestRoom(t)
	_ = admitMember(t, r, "alice", types.RoleEditor)
	viewer := admitMember(t, r, "eve", types.RoleViewer)

	proposeChange(t, r, "eve", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "x"})

	env := waitFrame(t, viewer, types.MsgError)
	var payload types.ErrorPayload
	decodePayload(t, env, &payload)
	if payload.Code != "permission_denied" {
		t.Errorf("Expected permission_denied, got %s", payload.Code)
	}
	if got := store.LastSeq("diagram-1"); got != 0 {
		t.Errorf("Viewer change must not reach the model, seq is %d", got)
	}
}

func TestRoomInvalidChangeRejected(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", "node-teleport", "n1", map[string]interface{}{"x": 1.0})

	env := waitFrame(t, alice, types.MsgError)
	var payload types.ErrorPayload
	decodePayload(t, env, &payload)
	if payload.Code != "invalid_change" {
		t.Errorf("Expected invalid_change, got %s", payload.Code)
	}
}

func TestRoomConflictDetectionAndManualResolution(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	waitFrames(t, bob, types.MsgChangesReceived, 1)
	proposeChange(t, r, "alice", "c2", types.ChangeNodeUpdate, "n1", map[string]interface{}{"label": "gateway"})
	waitFrames(t, bob, types.MsgChangesReceived, 2)

	// Bob edits the same element without having acknowledged alice's update
	proposeChange(t, r, "bob", "c3", types.ChangeNodeUpdate, "n1", map[string]interface{}{"label": "db"})

	for _, conn := range []*fakeConn{alice, bob} {
		env := waitFrame(t, conn, types.MsgConflictDetected)
		var detected types.ConflictDetectedPayload
		decodePayload(t, env, &detected)
		if len(detected.Conflicts) != 1 {
			t.Fatalf("Expected 1 conflict for %s, got %d", conn.userID, len(detected.Conflicts))
		}
		conflict := detected.Conflicts[0]
		if conflict.Type != types.ConflictConcurrentEdit {
			t.Errorf("Expected concurrent-edit, got %s", conflict.Type)
		}
		if conflict.Classification != types.ClassEdit {
			t.Errorf("Structural edits must not auto-resolve, got class %s", conflict.Classification)
		}
	}

	var detected types.ConflictDetectedPayload
	decodePayload(t, waitFrame(t, alice, types.MsgConflictDetected), &detected)
	conflictID := detected.Conflicts[0].ID

	submit(t, r, "alice", types.MsgResolveConflict, types.ResolveConflictPayload{
		ConflictID: conflictID,
		Resolution: types.ResolveRemote,
	})

	env := waitFrame(t, bob, types.MsgConflictResolved)
	var resolved types.ConflictResolvedPayload
	decodePayload(t, env, &resolved)
	if resolved.Conflict.Resolution != types.ResolveRemote {
		t.Errorf("Expected remote resolution, got %s", resolved.Conflict.Resolution)
	}
	if resolved.Conflict.ResolvedBy != "alice" {
		t.Errorf("Expected alice as resolver, got %s", resolved.Conflict.ResolvedBy)
	}

	// The resolution minted a new change at seq 3 carrying bob's payload
	frames := waitFrames(t, alice, types.MsgChangesReceived, 3)
	var payload types.ChangesReceivedPayload
	decodePayload(t, frames[2], &payload)
	if payload.Changes[0].SequenceNumber != 3 {
		t.Errorf("Resolution change should take seq 3, got %d", payload.Changes[0].SequenceNumber)
	}
	if payload.Changes[0].Payload["label"] != "db" {
		t.Errorf("Remote resolution must carry bob's payload, got %v", payload.Changes[0].Payload)
	}
	if got := store.LastSeq("diagram-1"); got != 3 {
		t.Errorf("Model should be at seq 3, got %d", got)
	}

	// Second resolution of the same conflict loses the race
	submit(t, r, "alice", types.MsgResolveConflict, types.ResolveConflictPayload{
		ConflictID: conflictID,
		Resolution: types.ResolveLocal,
	})
	env = waitFrame(t, alice, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "unknown_conflict" {
		t.Errorf("Expected unknown_conflict, got %s", errPayload.Code)
	}
}

func TestRoomIgnoresDuplicateChangeID(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	waitFrames(t, bob, types.MsgChangesReceived, 1)

	// A redelivered proposal with a known ID must not be renumbered
	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	time.Sleep(50 * time.Millisecond)

	frames := bob.framesOfType(types.MsgChangesReceived)
	if len(frames) != 1 {
		t.Fatalf("Duplicate ID must not broadcast again, got %d change frames", len(frames))
	}
	var payload types.ChangesReceivedPayload
	decodePayload(t, frames[0], &payload)
	if payload.Changes[0].SequenceNumber != 1 {
		t.Errorf("Expected seq 1 for the original change, got %d", payload.Changes[0].SequenceNumber)
	}
	if got := store.LastSeq("diagram-1"); got != 1 {
		t.Errorf("Model must stay at seq 1, got %d", got)
	}

	// Peers with the duplicate ID already applied stay gapless
	for _, conn := range []*fakeConn{alice, bob} {
		if got := r.Stats().Seq; got != 1 {
			t.Errorf("Room seq must stay 1, got %d (checking for %s)", got, conn.userID)
		}
	}
}

func TestRoomConflictFreezesTarget(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	waitFrames(t, bob, types.MsgChangesReceived, 1)
	proposeChange(t, r, "alice", "c2", types.ChangeNodeUpdate, "n1", map[string]interface{}{"label": "gateway"})
	waitFrames(t, bob, types.MsgChangesReceived, 2)

	// Bob's unacked edit collides and opens a structural conflict
	proposeChange(t, r, "bob", "c3", types.ChangeNodeUpdate, "n1", map[string]interface{}{"label": "db"})
	waitFrame(t, bob, types.MsgConflictDetected)

	// While the conflict is open, further edits to n1 are held, not numbered
	proposeChange(t, r, "bob", "c4", types.ChangeNodeUpdate, "n1", map[string]interface{}{"label": "cache"})
	time.Sleep(50 * time.Millisecond)
	if got := len(bob.framesOfType(types.MsgChangesReceived)); got != 2 {
		t.Fatalf("Held proposal must not broadcast, got %d change frames", got)
	}
	if got := len(bob.framesOfType(types.MsgConflictDetected)); got != 1 {
		t.Fatalf("Held proposal must not raise a second conflict, got %d", got)
	}

	var detected types.ConflictDetectedPayload
	decodePayload(t, waitFrame(t, alice, types.MsgConflictDetected), &detected)
	submit(t, r, "alice", types.MsgResolveConflict, types.ResolveConflictPayload{
		ConflictID: detected.Conflicts[0].ID,
		Resolution: types.ResolveRemote,
	})

	// Resolution unfreezes n1: the resolution change lands at seq 3 and
	// bob's held edit re-enters the pipeline and takes seq 4
	frames := waitFrames(t, bob, types.MsgChangesReceived, 4)
	var payload types.ChangesReceivedPayload
	decodePayload(t, frames[3], &payload)
	if payload.Changes[0].SequenceNumber != 4 {
		t.Errorf("Released proposal should take seq 4, got %d", payload.Changes[0].SequenceNumber)
	}
	if payload.Changes[0].Payload["label"] != "cache" {
		t.Errorf("Released proposal must keep its payload, got %v", payload.Changes[0].Payload)
	}
	if got := store.LastSeq("diagram-1"); got != 4 {
		t.Errorf("Model should be at seq 4, got %d", got)
	}
}

func TestRoomPositionConflictAutoResolves(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"x": 0.0, "y": 0.0})
	waitFrames(t, bob, types.MsgChangesReceived, 1)
	proposeChange(t, r, "alice", "c2", types.ChangeNodeUpdate, "n1", map[string]interface{}{"x": 10.0})
	waitFrames(t, bob, types.MsgChangesReceived, 2)

	// Bob's unacked move of the same node resolves automatically in his favor
	proposeChange(t, r, "bob", "c3", types.ChangeNodeUpdate, "n1", map[string]interface{}{"x": 20.0})

	env := waitFrame(t, alice, types.MsgConflictResolved)
	var resolved types.ConflictResolvedPayload
	decodePayload(t, env, &resolved)
	if resolved.Conflict.Classification != types.ClassPosition {
		t.Errorf("Expected position classification, got %s", resolved.Conflict.Classification)
	}
	if resolved.Conflict.Resolution != types.ResolveRemote {
		t.Errorf("Position races resolve remote, got %s", resolved.Conflict.Resolution)
	}
	if frames := alice.framesOfType(types.MsgConflictDetected); len(frames) != 0 {
		t.Errorf("Auto-resolved conflicts must not surface as conflict_detected")
	}

	waitFrames(t, alice, types.MsgChangesReceived, 3)
	snapshot, seq, err := store.GetSnapshot(context.Background(), "diagram-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("Expected model at seq 3, got %d", seq)
	}
	var state struct {
		Nodes map[string]map[string]interface{} `json:"nodes"`
	}
	if err := json.Unmarshal(snapshot, &state); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if got := state.Nodes["n1"]["x"]; got != 20.0 {
		t.Errorf("Later move must win, x is %v", got)
	}
}

func TestRoomJoinCatchUpTail(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "a"})
	proposeChange(t, r, "alice", "c2", types.ChangeNodeAdd, "n2", map[string]interface{}{"label": "b"})
	proposeChange(t, r, "alice", "c3", types.ChangeNodeAdd, "n3", map[string]interface{}{"label": "c"})
	waitFrames(t, alice, types.MsgChangesReceived, 3)

	bob := admitMember(t, r, "bob", types.RoleEditor)
	submit(t, r, "bob", types.MsgJoin, types.JoinPayload{DiagramID: "diagram-1", UserID: "bob", BaselineSeq: 1})

	env := waitFrame(t, bob, types.MsgJoined)
	var reply types.JoinedPayload
	decodePayload(t, env, &reply)
	if reply.BaselineSeq != 3 {
		t.Errorf("Expected baseline 3 in joined, got %d", reply.BaselineSeq)
	}

	env = waitFrame(t, bob, types.MsgChangesReceived)
	var payload types.ChangesReceivedPayload
	decodePayload(t, env, &payload)
	if len(payload.Changes) != 2 {
		t.Fatalf("Expected tail of 2 changes past baseline 1, got %d", len(payload.Changes))
	}
	if payload.Changes[0].SequenceNumber != 2 || payload.Changes[1].SequenceNumber != 3 {
		t.Errorf("Tail out of order: %d, %d",
			payload.Changes[0].SequenceNumber, payload.Changes[1].SequenceNumber)
	}
}

func TestRoomFullSync(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "a"})
	waitFrames(t, alice, types.MsgChangesReceived, 1)

	submit(t, r, "alice", types.MsgRequestFullSync, types.RequestFullSyncPayload{FromSeq: 0})

	env := waitFrame(t, alice, types.MsgFullSync)
	var payload types.FullSyncPayload
	decodePayload(t, env, &payload)
	if payload.SnapshotSeq != 1 {
		t.Errorf("Expected snapshot at seq 1, got %d", payload.SnapshotSeq)
	}
	if len(payload.Tail) != 0 {
		t.Errorf("Snapshot covers the whole log, tail should be empty, got %d", len(payload.Tail))
	}
	var state struct {
		Nodes map[string]map[string]interface{} `json:"nodes"`
	}
	if err := json.Unmarshal(payload.Snapshot, &state); err != nil {
		t.Fatalf("Snapshot is not valid JSON: %v", err)
	}
	if _, exists := state.Nodes["n1"]; !exists {
		t.Error("Snapshot missing node n1")
	}
}

func TestRoomCursorAndPresenceFanout(t *testing.T) {
	r, _ := newTestRoom(t)
	_ = admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	submit(t, r, "alice", types.MsgCursorUpdate, types.CursorUpdatePayload{
		Position: types.Position{X: 42, Y: 7},
	})

	env := waitFrame(t, bob, types.MsgCursorUpdated)
	var cursor types.CursorUpdatedPayload
	decodePayload(t, env, &cursor)
	if cursor.UserID != "alice" || cursor.Position.X != 42 {
		t.Errorf("Expected alice's cursor at x=42, got %s at x=%v", cursor.UserID, cursor.Position.X)
	}

	submit(t, r, "alice", types.MsgPresenceUpdate, types.PresenceUpdatePayload{Status: types.StatusAway})

	env = waitFrame(t, bob, types.MsgPresenceUpdated)
	var status types.PresenceUpdatedPayload
	decodePayload(t, env, &status)
	if status.UserID != "alice" || status.Status != types.StatusAway {
		t.Errorf("Expected alice away, got %s %s", status.UserID, status.Status)
	}
}

func TestRoomCommentFlow(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleViewer)

	// Viewers may comment even though they cannot edit
	submit(t, r, "bob", types.MsgAddComment, types.AddCommentPayload{
		Content:  "Should this edge be bidirectional?",
		Position: &types.Position{X: 5, Y: 5},
	})

	env := waitFrame(t, alice, types.MsgCommentsUpdated)
	var updated types.CommentsUpdatedPayload
	decodePayload(t, env, &updated)
	if len(updated.Comments) != 1 {
		t.Fatalf("Expected 1 comment, got %d", len(updated.Comments))
	}
	comment := updated.Comments[0]
	if comment.Status != types.CommentPending || comment.AuthorID != "bob" {
		t.Errorf("Unexpected comment state: status=%s author=%s", comment.Status, comment.AuthorID)
	}

	submit(t, r, "alice", types.MsgResolveComment, types.ResolveCommentPayload{CommentID: comment.ID})

	frames := waitFrames(t, bob, types.MsgCommentsUpdated, 2)
	decodePayload(t, frames[1], &updated)
	if updated.Comments[0].Status != types.CommentResolved {
		t.Errorf("Expected resolved status, got %s", updated.Comments[0].Status)
	}
	if updated.Comments[0].ResolvedBy != "alice" {
		t.Errorf("Expected alice as resolver, got %s", updated.Comments[0].ResolvedBy)
	}

	submit(t, r, "alice", types.MsgResolveComment, types.ResolveCommentPayload{CommentID: "missing"})
	env = waitFrame(t, alice, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "comment_not_found" {
		t.Errorf("Expected comment_not_found, got %s", errPayload.Code)
	}
}

func TestRoomDisconnectFanout(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	r.Disconnect(alice)

	env := waitFrame(t, bob, types.MsgUserLeft)
	var left types.UserLeftPayload
	decodePayload(t, env, &left)
	if left.UserID != "alice" {
		t.Errorf("Expected alice to leave, got %s", left.UserID)
	}
}

func TestRoomReconnectReplacesConnection(t *testing.T) {
	r, _ := newTestRoom(t)
	first := admitMember(t, r, "alice", types.RoleEditor)
	bob := admitMember(t, r, "bob", types.RoleEditor)
	waitFrames(t, first, types.MsgUserJoined, 1)

	second := admitMember(t, r, "alice", types.RoleEditor)

	deadline := time.Now().Add(2 * time.Second)
	for !first.isClosed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !first.isClosed() {
		t.Error("Replaced connection should be closed")
	}

	// A stale disconnect from the old transport must not evict the member
	r.Disconnect(first)

	proposeChange(t, r, "bob", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "a"})
	waitFrames(t, second, types.MsgChangesReceived, 1)

	if frames := bob.framesOfType(types.MsgUserLeft); len(frames) != 0 {
		t.Error("Reconnect must not produce user_left churn")
	}
	if frames := bob.framesOfType(types.MsgUserJoined); len(frames) != 0 {
		t.Errorf("Reconnect must not re-announce the member, got %d user_joined", len(frames))
	}
}

func TestRoomRosterOperationsOwnerOnly(t *testing.T) {
	r, _ := newTestRoom(t)
	admitMember(t, r, "alice", types.RoleOwner)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	submit(t, r, "bob", types.MsgRemoveUser, types.RemoveUserPayload{UserID: "alice"})
	env := waitFrame(t, bob, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "permission_denied" {
		t.Errorf("Expected permission_denied for non-owner, got %s", errPayload.Code)
	}
}

func TestRoomUpdateUserRoleTakesEffectImmediately(t *testing.T) {
	r, store := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleOwner)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	submit(t, r, "alice", types.MsgUpdateUserRole, types.UpdateUserRolePayload{
		UserID: "bob",
		Role:   types.RoleViewer,
	})

	// The demotion rides a roster broadcast carrying bob's new role
	frames := waitFrames(t, alice, types.MsgUserJoined, 2)
	var joined types.UserJoinedPayload
	decodePayload(t, frames[1], &joined)
	if joined.User.ID != "bob" || joined.User.Role != types.RoleViewer {
		t.Fatalf("Expected bob as viewer in roster update, got %+v", joined.User)
	}

	// A demoted member can no longer propose
	proposeChange(t, r, "bob", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "api"})
	env := waitFrame(t, bob, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "permission_denied" {
		t.Errorf("Expected permission_denied after demotion, got %s", errPayload.Code)
	}
	if got := store.LastSeq("diagram-1"); got != 0 {
		t.Errorf("Demoted member's change must not land, seq %d", got)
	}
}

func TestRoomRemoveUserEvictsLiveMember(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleOwner)
	bob := admitMember(t, r, "bob", types.RoleEditor)

	// Owners cannot remove themselves
	submit(t, r, "alice", types.MsgRemoveUser, types.RemoveUserPayload{UserID: "alice"})
	env := waitFrame(t, alice, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "invalid_target" {
		t.Errorf("Expected invalid_target for self-removal, got %s", errPayload.Code)
	}

	submit(t, r, "alice", types.MsgRemoveUser, types.RemoveUserPayload{UserID: "bob"})

	env = waitFrame(t, alice, types.MsgUserLeft)
	var left types.UserLeftPayload
	decodePayload(t, env, &left)
	if left.UserID != "bob" {
		t.Errorf("Expected user_left for bob, got %s", left.UserID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !bob.isClosed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !bob.isClosed() {
		t.Error("Removed member's connection should be closed")
	}
}

func TestRoomInviteValidation(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleOwner)

	submit(t, r, "alice", types.MsgInviteUser, types.InviteUserPayload{
		Email: "carol@example.com",
		Role:  "superuser",
	})
	env := waitFrame(t, alice, types.MsgError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	if errPayload.Code != "invalid_role" {
		t.Errorf("Expected invalid_role, got %s", errPayload.Code)
	}
}

func TestRoomStats(t *testing.T) {
	r, _ := newTestRoom(t)
	alice := admitMember(t, r, "alice", types.RoleEditor)
	_ = admitMember(t, r, "bob", types.RoleViewer)

	proposeChange(t, r, "alice", "c1", types.ChangeNodeAdd, "n1", map[string]interface{}{"label": "a"})
	waitFrames(t, alice, types.MsgChangesReceived, 1)

	stats := r.Stats()
	if stats.DiagramID != "diagram-1" {
		t.Errorf("Expected diagram-1, got %s", stats.DiagramID)
	}
	if stats.Members != 2 {
		t.Errorf("Expected 2 members, got %d", stats.Members)
	}
	if stats.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", stats.Seq)
	}
	if stats.LoggedChanges != 1 {
		t.Errorf("Expected 1 logged change, got %d", stats.LoggedChanges)
	}
}

func TestRoomClosedRejectsSubmit(t *testing.T) {
	cfg := DefaultConfig()
	r, err := newRoom(context.Background(), "diagram-close", cfg, model.NewStore(nil), nil)
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	r.Close()

	env, _ := types.NewEnvelope(types.MsgAck, types.AckPayload{Seq: 1})
	if err := r.Submit("alice", env); err != ErrRoomClosed {
		t.Errorf("Expected ErrRoomClosed, got %v", err)
	}
	if err := r.admit(newFakeConn("alice"), "alice", types.RoleEditor); err != ErrRoomClosed {
		t.Errorf("Expected ErrRoomClosed on admit, got %v", err)
	}
}
