package room

import (
	"context"
	"log"
	"sync"
	"time"

	"syncboard/internal/comments"
	"syncboard/internal/presence"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Config holds tunable parameters for room behavior
type Config struct {
	InboundBuffer  int           // inbound command queue size
	LogMaxEntries  int           // change log size cap
	LogTTL         time.Duration // change log hard TTL
	CursorInterval time.Duration // cursor broadcast throttle window
	EvictInterval  time.Duration // change log eviction cadence
}

// DefaultConfig returns production room parameters
func DefaultConfig() Config {
	return Config{
		InboundBuffer:  256,
		LogMaxEntries:  defaultLogMaxEntries,
		LogTTL:         defaultLogTTL,
		CursorInterval: presence.DefaultCursorInterval,
		EvictInterval:  30 * time.Second,
	}
}

// member tracks one connected collaborator
type member struct {
	conn interfaces.Connection
	name string
	role string
}

type cmdKind int

const (
	cmdEnvelope cmdKind = iota
	cmdAdmit
	cmdDisconnect
	cmdCursorEmit
	cmdStats
)

// command is the single message type consumed by the room goroutine
type command struct {
	kind     cmdKind
	userID   string
	env      *types.Envelope
	conn     interfaces.Connection
	name     string
	role     string
	position types.Position
	reply    chan error
	stats    chan Stats
}

// Stats is a point-in-time view of room state for monitoring
type Stats struct {
	DiagramID        string `json:"diagram_id"`
	Members          int    `json:"members"`
	Seq              uint64 `json:"seq"`
	PendingConflicts int    `json:"pending_conflicts"`
	Comments         int    `json:"comments"`
	LoggedChanges    int    `json:"logged_changes"`
}

// Room is the authority for one diagram: it owns the sequence counter,
// the change log, presence and conflict state
// ARCHITECTURAL DISCOVERY: Single goroutine per room eliminates locking
// across every ordering-sensitive decision; all mutation flows through
// one inbound channel
type Room struct {
	diagramID string
	cfg       Config
	model     interfaces.ModelStore
	backend   interfaces.PersistenceBackend // nil disables persistence

	inbound  chan command
	shutdown chan struct{}
	done     chan struct{}

	// State below is owned exclusively by the run goroutine
	members   map[string]*member
	presence  *presence.Tracker
	throttler *presence.Throttler
	comments  *comments.Store
	changes   *changeLog
	conflicts *detector
	seq       uint64

	closeOnce sync.Once
}

// newRoom creates and starts a room for a diagram
func newRoom(ctx context.Context, diagramID string, cfg Config, modelStore interfaces.ModelStore, backend interfaces.PersistenceBackend) (*Room, error) {
	r := &Room{
		diagramID: diagramID,
		cfg:       cfg,
		model:     modelStore,
		backend:   backend,
		inbound:   make(chan command, cfg.InboundBuffer),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		members:   make(map[string]*member),
		presence:  presence.NewTracker(),
		comments:  comments.NewStore(diagramID, backend),
		changes:   newChangeLog(cfg.LogMaxEntries, cfg.LogTTL),
		conflicts: newDetector(),
	}

	// Seed the sequence counter from the authoritative model
	_, seq, err := modelStore.GetSnapshot(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	r.seq = seq

	if err := r.comments.Load(ctx); err != nil {
		return nil, err
	}

	// TECHNICAL DISCOVERY: Throttler emissions re-enter through the inbound
	// queue so broadcast stays on the room goroutine
	r.throttler = presence.NewThrottler(cfg.CursorInterval, func(userID string, position types.Position) {
		select {
		case r.inbound <- command{kind: cmdCursorEmit, userID: userID, position: position}:
		case <-r.shutdown:
		default:
			// Dropping a throttled cursor frame under pressure is harmless
		}
	})

	go r.run()
	return r, nil
}

// DiagramID returns the diagram this room serves
func (r *Room) DiagramID() string {
	return r.diagramID
}

// Submit enqueues a decoded envelope from a member connection
func (r *Room) Submit(userID string, env *types.Envelope) error {
	select {
	case <-r.shutdown:
		return ErrRoomClosed
	default:
	}

	select {
	case r.inbound <- command{kind: cmdEnvelope, userID: userID, env: env}:
		return nil
	case <-r.shutdown:
		return ErrRoomClosed
	}
}

// admit registers a connection as a room member
func (r *Room) admit(conn interfaces.Connection, name, role string) error {
	reply := make(chan error, 1)
	select {
	case r.inbound <- command{kind: cmdAdmit, userID: conn.GetUserID(), conn: conn, name: name, role: role, reply: reply}:
	case <-r.shutdown:
		return ErrRoomClosed
	}

	select {
	case err := <-reply:
		return err
	case <-r.shutdown:
		return ErrRoomClosed
	}
}

// Disconnect removes a connection from the room. Safe to call for
// connections that were already replaced by a reconnect.
func (r *Room) Disconnect(conn interfaces.Connection) {
	select {
	case r.inbound <- command{kind: cmdDisconnect, userID: conn.GetUserID(), conn: conn}:
	case <-r.shutdown:
	}
}

// Stats returns a snapshot of room state for monitoring
func (r *Room) Stats() Stats {
	statsCh := make(chan Stats, 1)
	select {
	case r.inbound <- command{kind: cmdStats, stats: statsCh}:
	case <-r.shutdown:
		return Stats{DiagramID: r.diagramID}
	}

	select {
	case stats := <-statsCh:
		return stats
	case <-r.shutdown:
		return Stats{DiagramID: r.diagramID}
	case <-time.After(5 * time.Second):
		return Stats{DiagramID: r.diagramID}
	}
}

// MemberCount reports current membership, used by the idle reaper
func (r *Room) MemberCount() int {
	return r.Stats().Members
}

// Close shuts the room down and archives the remaining change log
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.shutdown)
	})
	<-r.done
}

// run is the room goroutine; it owns all room state
func (r *Room) run() {
	defer close(r.done)

	evictTicker := time.NewTicker(r.cfg.EvictInterval)
	defer evictTicker.Stop()

	for {
		select {
		case cmd := <-r.inbound:
			r.dispatch(cmd)

		case <-evictTicker.C:
			r.evictLog()

		case <-r.shutdown:
			r.throttler.Stop()
			r.archiveAndSnapshot(r.changes.tail(0))
			return
		}
	}
}

func (r *Room) dispatch(cmd command) {
	switch cmd.kind {
	case cmdAdmit:
		cmd.reply <- r.handleAdmit(cmd)
	case cmdDisconnect:
		r.handleDisconnect(cmd)
	case cmdCursorEmit:
		r.broadcastExcept(cmd.userID, types.MsgCursorUpdated, types.CursorUpdatedPayload{
			UserID:   cmd.userID,
			Position: cmd.position,
		})
	case cmdStats:
		cmd.stats <- Stats{
			DiagramID:        r.diagramID,
			Members:          len(r.members),
			Seq:              r.seq,
			PendingConflicts: r.conflicts.pendingCount(),
			Comments:         r.comments.Count(),
			LoggedChanges:    r.changes.size(),
		}
	case cmdEnvelope:
		r.handleEnvelope(cmd.userID, cmd.env)
	}
}

// handleAdmit adds or replaces a member
func (r *Room) handleAdmit(cmd command) error {
	existing, rejoin := r.members[cmd.userID]
	r.members[cmd.userID] = &member{conn: cmd.conn, name: cmd.name, role: cmd.role}

	// FUNCTIONAL DISCOVERY: Reconnect replaces the transport without a
	// leave/join churn visible to the rest of the room
	if rejoin && existing.conn != cmd.conn {
		go func(old interfaces.Connection) {
			if err := old.Close(); err != nil {
				log.Printf("Failed to close replaced connection: %v", err)
			}
		}(existing.conn)
	}

	user := r.presence.Join(cmd.userID, cmd.name, cmd.role)
	if !rejoin {
		r.broadcastExcept(cmd.userID, types.MsgUserJoined, types.UserJoinedPayload{User: *user})
	}
	return nil
}

// handleDisconnect removes a member when their current connection drops
func (r *Room) handleDisconnect(cmd command) {
	current, exists := r.members[cmd.userID]
	if !exists || current.conn != cmd.conn {
		return // A newer connection took over, nothing to do
	}

	delete(r.members, cmd.userID)
	r.presence.Leave(cmd.userID)
	r.throttler.Forget(cmd.userID)
	r.changes.forget(cmd.userID)

	r.broadcastExcept(cmd.userID, types.MsgUserLeft, types.UserLeftPayload{UserID: cmd.userID})
}

// handleEnvelope routes one decoded message from a member
func (r *Room) handleEnvelope(userID string, env *types.Envelope) {
	m, exists := r.members[userID]
	if !exists {
		return
	}

	switch env.Type {
	case types.MsgJoin:
		r.handleJoin(userID, m, env)
	case types.MsgCursorUpdate:
		r.handleCursorUpdate(userID, env)
	case types.MsgPresenceUpdate:
		r.handlePresenceUpdate(userID, env)
	case types.MsgSyncChanges:
		r.handleSyncChanges(userID, m, env)
	case types.MsgAck:
		r.handleAck(userID, env)
	case types.MsgResolveConflict:
		r.handleResolveConflict(userID, m, env)
	case types.MsgAddComment:
		r.handleAddComment(userID, env)
	case types.MsgResolveComment:
		r.handleResolveComment(userID, env)
	case types.MsgRequestFullSync:
		r.handleFullSyncRequest(userID, env)
	case types.MsgInviteUser:
		r.handleInviteUser(userID, m, env)
	case types.MsgRemoveUser:
		r.handleRemoveUser(userID, m, env)
	case types.MsgUpdateUserRole:
		r.handleUpdateUserRole(userID, m, env)
	default:
		// FUNCTIONAL DISCOVERY: Unknown types are ignored, not fatal, so
		// newer clients can talk to older servers
		log.Printf("Ignoring unknown message type %q from user %s", env.Type, userID)
	}
}

func (r *Room) handleJoin(userID string, m *member, env *types.Envelope) {
	var payload types.JoinPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid join payload")
		return
	}

	r.send(userID, types.MsgJoined, types.JoinedPayload{
		SessionID:   m.conn.GetSessionID(),
		Users:       flattenUsers(r.presence.List()),
		BaselineSeq: r.seq,
		Role:        m.role,
	})

	// Catch the member up from their baseline
	if payload.BaselineSeq >= r.seq {
		return
	}
	oldest := r.changes.oldestSeq()
	if oldest != 0 && payload.BaselineSeq+1 >= oldest {
		tail := r.changes.tail(payload.BaselineSeq + 1)
		if len(tail) > 0 {
			r.send(userID, types.MsgChangesReceived, types.ChangesReceivedPayload{Changes: tail})
		}
		return
	}
	// FUNCTIONAL DISCOVERY: Baseline older than the log forces a full sync;
	// replaying a gapped tail would corrupt the member's model
	r.sendFullSync(userID)
}

func (r *Room) handleCursorUpdate(userID string, env *types.Envelope) {
	var payload types.CursorUpdatePayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid cursor payload")
		return
	}

	r.presence.UpdateCursor(userID, payload.Position)
	r.throttler.Submit(userID, payload.Position)
}

func (r *Room) handlePresenceUpdate(userID string, env *types.Envelope) {
	var payload types.PresenceUpdatePayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid presence payload")
		return
	}
	if !types.IsValidStatus(payload.Status) {
		r.sendError(userID, "invalid_status", "Unknown presence status")
		return
	}

	r.presence.UpdateStatus(userID, payload.Status)
	r.broadcastExcept(userID, types.MsgPresenceUpdated, types.PresenceUpdatedPayload{
		UserID: userID,
		Status: payload.Status,
	})
}

// handleSyncChanges numbers, applies and broadcasts proposed changes
func (r *Room) handleSyncChanges(userID string, m *member, env *types.Envelope) {
	// ARCHITECTURAL DISCOVERY: Role enforcement happens at the authority,
	// not just the client; a tampered viewer still cannot mutate the room
	if !types.CanEdit(m.role) {
		r.sendError(userID, "permission_denied", "Viewers cannot propose changes")
		return
	}

	var payload types.SyncChangesPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid changes payload")
		return
	}

	for _, proposal := range payload.Changes {
		proposal.OriginUserID = userID
		if err := proposal.Validate(); err != nil {
			r.sendError(userID, "invalid_change", err.Error())
			continue
		}
		r.processProposal(proposal)
	}
}

// processProposal runs one validated change through the conflict pipeline
func (r *Room) processProposal(proposal types.Change) {
	// FUNCTIONAL DISCOVERY: A redelivered proposal must not take a second
	// sequence number; re-numbering an already-applied ID stalls every
	// member's gapless baseline
	if r.changes.contains(proposal.ID) {
		log.Printf("Ignoring duplicate change %s in diagram %s", proposal.ID, r.diagramID)
		return
	}

	// An open conflict freezes its target; later proposals wait their turn
	if r.conflicts.blocked(proposal.TargetID) {
		r.conflicts.hold(proposal)
		return
	}

	conflict := r.conflicts.detect(proposal, r.changes, r.changes.ackedSeq(proposal.OriginUserID))
	if conflict == nil {
		r.acceptChange(proposal)
		return
	}

	if conflict.Classification == types.ClassPosition {
		// Position races auto-resolve in favor of the later proposal
		r.applyResolution(conflict, types.ResolveRemote, nil, "")
		return
	}

	// Structural conflicts wait for an explicit resolution
	r.conflicts.register(conflict)
	for _, involved := range conflict.InvolvedUsers {
		r.send(involved, types.MsgConflictDetected, types.ConflictDetectedPayload{
			Conflicts: []types.Conflict{*conflict},
		})
	}
}

// acceptChange assigns the next sequence number, folds the change into
// the model and broadcasts it to every member including the origin
func (r *Room) acceptChange(change types.Change) bool {
	change.SequenceNumber = r.seq + 1
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.model.ApplyChange(ctx, r.diagramID, change); err != nil {
		log.Printf("Failed to apply change %s in diagram %s: %v", change.ID, r.diagramID, err)
		r.sendError(change.OriginUserID, "apply_failed", "Change could not be applied")
		return false
	}

	r.seq = change.SequenceNumber
	r.changes.append(change)
	// The origin learns its change's number from the same broadcast
	r.broadcast(types.MsgChangesReceived, types.ChangesReceivedPayload{Changes: []types.Change{change}})
	return true
}

func (r *Room) handleAck(userID string, env *types.Envelope) {
	var payload types.AckPayload
	if err := env.Decode(&payload); err != nil {
		return
	}
	r.changes.ack(userID, payload.Seq)
}

func (r *Room) handleResolveConflict(userID string, m *member, env *types.Envelope) {
	if !types.CanEdit(m.role) {
		r.sendError(userID, "permission_denied", "Viewers cannot resolve conflicts")
		return
	}

	var payload types.ResolveConflictPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid resolution payload")
		return
	}

	switch payload.Resolution {
	case types.ResolveLocal, types.ResolveRemote, types.ResolveCustom:
	default:
		r.sendError(userID, "invalid_resolution", "Unknown resolution strategy")
		return
	}
	if payload.Resolution == types.ResolveCustom && payload.CustomResolution == nil {
		r.sendError(userID, "invalid_resolution", "Custom resolution requires a merged payload")
		return
	}

	conflict, exists := r.conflicts.take(payload.ConflictID)
	if !exists {
		// FUNCTIONAL DISCOVERY: Duplicate resolutions lose the race; the
		// first one wins and later ones get a specific error
		r.sendError(userID, "unknown_conflict", "Conflict not found or already resolved")
		return
	}

	r.applyResolution(conflict, payload.Resolution, payload.CustomResolution, userID)
}

// applyResolution finishes a conflict and broadcasts the outcome
func (r *Room) applyResolution(conflict *types.Conflict, resolution string, custom map[string]interface{}, resolvedBy string) {
	change := resolutionChange(conflict, resolution, custom, resolvedBy)
	if change.OriginUserID == "" {
		change.OriginUserID = conflict.RemoteChange.OriginUserID
	}
	r.acceptChange(change)

	now := time.Now().UTC()
	conflict.Resolution = resolution
	conflict.ResolvedBy = resolvedBy
	conflict.ResolvedAt = &now

	r.broadcast(types.MsgConflictResolved, types.ConflictResolvedPayload{Conflict: *conflict})

	// Proposals that arrived while the target was frozen re-enter the
	// pipeline in arrival order; they may raise a fresh conflict against
	// the resolution outcome
	for _, held := range r.conflicts.release(conflict.TargetID) {
		r.processProposal(held)
	}
}

func (r *Room) handleAddComment(userID string, env *types.Envelope) {
	var payload types.AddCommentPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid comment payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.comments.Add(ctx, userID, payload.Content, payload.Position, payload.ElementID, payload.ParentCommentID)
	if err != nil {
		r.sendError(userID, "comment_rejected", err.Error())
		return
	}

	r.broadcast(types.MsgCommentsUpdated, types.CommentsUpdatedPayload{Comments: flattenComments(r.comments.List())})
}

func (r *Room) handleResolveComment(userID string, env *types.Envelope) {
	var payload types.ResolveCommentPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid comment resolution payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, changed, err := r.comments.Resolve(ctx, payload.CommentID, userID)
	if err != nil {
		r.sendError(userID, "comment_not_found", "Comment does not exist")
		return
	}
	if !changed {
		return // Already resolved, idempotent
	}

	r.broadcast(types.MsgCommentsUpdated, types.CommentsUpdatedPayload{Comments: flattenComments(r.comments.List())})
}

func (r *Room) handleFullSyncRequest(userID string, env *types.Envelope) {
	r.sendFullSync(userID)
}

func (r *Room) sendFullSync(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot, snapshotSeq, err := r.model.GetSnapshot(ctx, r.diagramID)
	if err != nil {
		log.Printf("Full sync snapshot failed for diagram %s: %v", r.diagramID, err)
		r.sendError(userID, "sync_failed", "Snapshot unavailable")
		return
	}

	// Changes folded after the snapshot was cut ride along as a tail
	tail := r.changes.tail(snapshotSeq + 1)
	r.send(userID, types.MsgFullSync, types.FullSyncPayload{
		Snapshot:    snapshot,
		SnapshotSeq: snapshotSeq,
		Tail:        tail,
	})
}

func (r *Room) handleInviteUser(userID string, m *member, env *types.Envelope) {
	if m.role != types.RoleOwner {
		r.sendError(userID, "permission_denied", "Only owners manage the roster")
		return
	}

	var payload types.InviteUserPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid invite payload")
		return
	}
	if !types.IsValidRole(payload.Role) {
		r.sendError(userID, "invalid_role", "Unknown role")
		return
	}

	if r.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := r.backend.UpsertCollaborator(ctx, &types.Collaborator{
			DiagramID: r.diagramID,
			UserID:    payload.Email,
			Role:      payload.Role,
			InvitedBy: userID,
			InvitedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("Failed to persist invite for %s: %v", payload.Email, err)
			r.sendError(userID, "invite_failed", "Invite could not be stored")
			return
		}
	}
}

func (r *Room) handleRemoveUser(userID string, m *member, env *types.Envelope) {
	if m.role != types.RoleOwner {
		r.sendError(userID, "permission_denied", "Only owners manage the roster")
		return
	}

	var payload types.RemoveUserPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid removal payload")
		return
	}
	if payload.UserID == userID {
		r.sendError(userID, "invalid_target", "Owners cannot remove themselves")
		return
	}

	if r.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.backend.RemoveCollaborator(ctx, r.diagramID, payload.UserID); err != nil {
			log.Printf("Failed to remove collaborator %s: %v", payload.UserID, err)
		}
	}

	// Evict the user if they are currently connected
	if target, online := r.members[payload.UserID]; online {
		r.sendError(payload.UserID, "removed", "You were removed from this diagram")
		delete(r.members, payload.UserID)
		r.presence.Leave(payload.UserID)
		r.throttler.Forget(payload.UserID)
		r.changes.forget(payload.UserID)
		go func(conn interfaces.Connection) {
			if err := conn.Close(); err != nil {
				log.Printf("Failed to close removed user connection: %v", err)
			}
		}(target.conn)
		r.broadcast(types.MsgUserLeft, types.UserLeftPayload{UserID: payload.UserID})
	}
}

func (r *Room) handleUpdateUserRole(userID string, m *member, env *types.Envelope) {
	if m.role != types.RoleOwner {
		r.sendError(userID, "permission_denied", "Only owners manage the roster")
		return
	}

	var payload types.UpdateUserRolePayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(userID, "malformed_payload", "Invalid role update payload")
		return
	}
	if !types.IsValidRole(payload.Role) {
		r.sendError(userID, "invalid_role", "Unknown role")
		return
	}

	if r.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := r.backend.UpsertCollaborator(ctx, &types.Collaborator{
			DiagramID: r.diagramID,
			UserID:    payload.UserID,
			Role:      payload.Role,
			InvitedBy: userID,
			InvitedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("Failed to persist role update for %s: %v", payload.UserID, err)
			r.sendError(userID, "role_update_failed", "Role change could not be stored")
			return
		}
	}

	// Live members see the new role immediately
	if target, online := r.members[payload.UserID]; online {
		target.role = payload.Role
		user := r.presence.Join(payload.UserID, target.name, payload.Role)
		r.broadcast(types.MsgUserJoined, types.UserJoinedPayload{User: *user})
	}
}

// evictLog trims the change log and archives evicted entries
func (r *Room) evictLog() {
	evicted := r.changes.evict(time.Now())
	if len(evicted) > 0 {
		r.archiveAndSnapshot(evicted)
	}
}

// archiveAndSnapshot persists evicted changes and a fresh model snapshot
// FUNCTIONAL DISCOVERY: Snapshotting at eviction time guarantees the
// durable snapshot always covers everything that left the in-memory log
func (r *Room) archiveAndSnapshot(evicted []types.Change) {
	if r.backend == nil || len(evicted) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.backend.ArchiveChanges(ctx, r.diagramID, evicted); err != nil {
		log.Printf("Failed to archive %d changes for diagram %s: %v", len(evicted), r.diagramID, err)
	}

	snapshot, seq, err := r.model.GetSnapshot(ctx, r.diagramID)
	if err != nil {
		log.Printf("Failed to snapshot diagram %s: %v", r.diagramID, err)
		return
	}
	if err := r.backend.SaveSnapshot(ctx, r.diagramID, seq, snapshot); err != nil {
		log.Printf("Failed to persist snapshot for diagram %s: %v", r.diagramID, err)
	}
}

// send delivers one message to a single member
func (r *Room) send(userID, msgType string, payload interface{}) {
	m, exists := r.members[userID]
	if !exists {
		return
	}
	env, err := types.NewEnvelope(msgType, payload)
	if err != nil {
		log.Printf("Failed to build %s envelope: %v", msgType, err)
		return
	}
	if err := m.conn.WriteJSON(env); err != nil {
		log.Printf("Failed to send %s to user %s: %v", msgType, userID, err)
	}
}

// broadcast delivers one message to every member
func (r *Room) broadcast(msgType string, payload interface{}) {
	r.broadcastExcept("", msgType, payload)
}

// broadcastExcept delivers one message to every member but one
func (r *Room) broadcastExcept(exceptUserID, msgType string, payload interface{}) {
	env, err := types.NewEnvelope(msgType, payload)
	if err != nil {
		log.Printf("Failed to build %s envelope: %v", msgType, err)
		return
	}
	for userID, m := range r.members {
		if userID == exceptUserID {
			continue
		}
		if err := m.conn.WriteJSON(env); err != nil {
			log.Printf("Failed to broadcast %s to user %s: %v", msgType, userID, err)
		}
	}
}

// sendError delivers an error envelope to one member
func (r *Room) sendError(userID, code, message string) {
	r.send(userID, types.MsgError, types.ErrorPayload{Code: code, Message: message})
}

// flattenUsers converts tracker output to wire values
func flattenUsers(users []*types.User) []types.User {
	out := make([]types.User, 0, len(users))
	for _, user := range users {
		out = append(out, *user)
	}
	return out
}

// flattenComments converts store output to wire values
func flattenComments(comments []*types.Comment) []types.Comment {
	out := make([]types.Comment, 0, len(comments))
	for _, comment := range comments {
		out = append(out, *comment)
	}
	return out
}
