package types

import (
	"encoding/json"
	"time"
)

// Wire message type constants
// ARCHITECTURAL DISCOVERY: Every frame on the wire is an Envelope whose type
// selects the payload shape; unknown types are ignored for forward compatibility
const (
	MsgJoin             = "join"
	MsgJoined           = "joined"
	MsgCursorUpdate     = "cursor_update"
	MsgCursorUpdated    = "cursor_updated"
	MsgPresenceUpdate   = "presence_update"
	MsgPresenceUpdated  = "presence_updated"
	MsgSyncChanges      = "sync_changes"
	MsgChangesReceived  = "changes_received"
	MsgConflictDetected = "conflict_detected"
	MsgResolveConflict  = "resolve_conflict"
	MsgConflictResolved = "conflict_resolved"
	MsgAddComment       = "add_comment"
	MsgResolveComment   = "resolve_comment"
	MsgCommentsUpdated  = "comments_updated"
	MsgRequestFullSync  = "request_full_sync"
	MsgFullSync         = "full_sync"
	MsgAck              = "ack"
	MsgInviteUser       = "invite_user"
	MsgRemoveUser       = "remove_user"
	MsgUpdateUserRole   = "update_user_role"
	MsgUserJoined       = "user_joined"
	MsgUserLeft         = "user_left"
	MsgError            = "error"
)

// Envelope frames every websocket message in both directions
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals a payload into a timestamped envelope
// TECHNICAL DISCOVERY: Marshal errors surface at send time rather than at
// delivery so a bad payload never reaches a connection write channel
func NewEnvelope(msgType string, payload interface{}) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{Type: msgType, Payload: raw, Timestamp: time.Now().UTC()}, nil
}

// Decode unmarshals the envelope payload into v
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return ErrMalformedMessage
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return ErrMalformedMessage
	}
	return nil
}

// JoinPayload opens a session within a diagram room
type JoinPayload struct {
	DiagramID   string `json:"diagram_id"`
	UserID      string `json:"user_id"`
	BaselineSeq uint64 `json:"baseline_seq,omitempty"` // resync point on reconnect
}

// JoinedPayload acknowledges admission and carries the sync baseline
type JoinedPayload struct {
	SessionID   string `json:"session_id"`
	Users       []User `json:"users"`
	BaselineSeq uint64 `json:"baseline_seq"`
	Role        string `json:"role"`
}

// CursorUpdatePayload is a client's throttled cursor position
type CursorUpdatePayload struct {
	Position Position `json:"position"`
}

// CursorUpdatedPayload fans a cursor move out to the room
type CursorUpdatedPayload struct {
	UserID   string   `json:"user_id"`
	Position Position `json:"position"`
}

// PresenceUpdatePayload is a client's status transition
type PresenceUpdatePayload struct {
	Status string `json:"status"`
}

// PresenceUpdatedPayload fans a status transition out to the room
type PresenceUpdatedPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// SyncChangesPayload carries locally originated mutation intents
type SyncChangesPayload struct {
	Changes []Change `json:"changes"`
}

// ChangesReceivedPayload carries room-numbered changes to all members
type ChangesReceivedPayload struct {
	Changes []Change `json:"changes"`
}

// ConflictDetectedPayload surfaces newly detected conflicts
type ConflictDetectedPayload struct {
	Conflicts []Conflict `json:"conflicts"`
}

// ResolveConflictPayload requests terminal resolution of one conflict
type ResolveConflictPayload struct {
	ConflictID       string                 `json:"conflict_id"`
	Resolution       string                 `json:"resolution"`
	CustomResolution map[string]interface{} `json:"custom_resolution,omitempty"`
}

// ConflictResolvedPayload announces a terminal resolution to the room
type ConflictResolvedPayload struct {
	Conflict Conflict `json:"conflict"`
}

// AddCommentPayload creates a comment or a threaded reply
type AddCommentPayload struct {
	Content         string    `json:"content"`
	Position        *Position `json:"position,omitempty"`
	ElementID       string    `json:"element_id,omitempty"`
	ParentCommentID string    `json:"parent_comment_id,omitempty"`
}

// ResolveCommentPayload transitions a comment to resolved
type ResolveCommentPayload struct {
	CommentID string `json:"comment_id"`
}

// CommentsUpdatedPayload fans comment state out to the room
type CommentsUpdatedPayload struct {
	Comments []Comment `json:"comments"`
}

// RequestFullSyncPayload asks for a snapshot plus the log tail
type RequestFullSyncPayload struct {
	FromSeq uint64 `json:"from_seq"`
}

// FullSyncPayload restores a member to the current baseline
// FUNCTIONAL DISCOVERY: Snapshot travels as raw JSON so the engine never
// couples to the diagram model's internal structure
type FullSyncPayload struct {
	Snapshot    json.RawMessage `json:"snapshot"`
	SnapshotSeq uint64          `json:"snapshot_seq"`
	Tail        []Change        `json:"tail"`
}

// AckPayload advances a member's acknowledged baseline
type AckPayload struct {
	Seq uint64 `json:"seq"`
}

// InviteUserPayload adds a collaborator to the roster (owner only)
type InviteUserPayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// RemoveUserPayload evicts a collaborator (owner only)
type RemoveUserPayload struct {
	UserID string `json:"user_id"`
}

// UpdateUserRolePayload changes a collaborator's role (owner only)
type UpdateUserRolePayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UserJoinedPayload announces a new room member
type UserJoinedPayload struct {
	User User `json:"user"`
}

// UserLeftPayload announces a departed room member
type UserLeftPayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload reports a request-scoped failure to one client
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
