package types

import (
	"time"
)

// Role constants for room membership
// FUNCTIONAL DISCOVERY: Viewer is a read-plus-comment tier; permission
// enforcement happens before any change reaches the synchronizer
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Presence status constants
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// Change type constants defined exactly as carried on the wire
// ARCHITECTURAL DISCOVERY: Six mutation kinds cover the full node/edge surface;
// anything richer belongs to the diagram model store, not the sync engine
const (
	ChangeNodeAdd    = "node-add"
	ChangeNodeUpdate = "node-update"
	ChangeNodeDelete = "node-delete"
	ChangeEdgeAdd    = "edge-add"
	ChangeEdgeUpdate = "edge-update"
	ChangeEdgeDelete = "edge-delete"
)

// Conflict type constants
const (
	ConflictConcurrentEdit  = "concurrent-edit"
	ConflictVersionMismatch = "version-mismatch"
)

// Conflict classification constants
// FUNCTIONAL DISCOVERY: Position-only collisions are mechanically mergeable
// and eligible for automatic resolution; structural edits are not
const (
	ClassPosition = "position"
	ClassEdit     = "edit"
)

// Conflict resolution constants
const (
	ResolveLocal  = "local"
	ResolveRemote = "remote"
	ResolveCustom = "custom"
)

// Comment status constants
const (
	CommentPending  = "pending"
	CommentResolved = "resolved"
)

// Position is a canvas coordinate, optionally anchored to an element
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"element_id,omitempty"`
}

// Change represents one atomic mutation intent against a diagram element
// FUNCTIONAL DISCOVERY: A Change is immutable once the room numbers it -
// re-broadcast after conflict resolution always mints a new Change
type Change struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	TargetID       string                 `json:"target_id"`
	Payload        map[string]interface{} `json:"payload"` // TECHNICAL DISCOVERY: flexible payloads keep the engine model-agnostic
	OriginUserID   string                 `json:"origin_user_id"`
	SequenceNumber uint64                 `json:"sequence_number"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Conflict records a detected collision between two changes on one element
// ARCHITECTURAL DISCOVERY: LocalChange is the change already accepted into the
// room log; RemoteChange is the later network arrival that collided with it
type Conflict struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Classification string     `json:"classification"`
	TargetID       string     `json:"target_id"`
	LocalChange    Change     `json:"local_change"`
	RemoteChange   Change     `json:"remote_change"`
	InvolvedUsers  []string   `json:"involved_users"`
	CreatedAt      time.Time  `json:"created_at"`
	Resolution     string     `json:"resolution,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the conflict reached its terminal state
func (c *Conflict) Resolved() bool {
	return c.Resolution != ""
}

// Comment is a positioned annotation, threaded via ParentCommentID
// FUNCTIONAL DISCOVERY: Comments never enter conflict detection - their only
// ordering is creation time within a thread
type Comment struct {
	ID              string     `json:"id"`
	DiagramID       string     `json:"diagram_id"`
	Content         string     `json:"content"`
	AuthorID        string     `json:"author_id"`
	Position        *Position  `json:"position,omitempty"`
	ElementID       string     `json:"element_id,omitempty"`
	ParentCommentID string     `json:"parent_comment_id,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// User is the aggregated per-member view broadcast to all room members
// FUNCTIONAL DISCOVERY: Last-writer-wins per field; cursor may lag or be
// dropped under backpressure without violating any ordering invariant
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Cursor     *Position `json:"cursor,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Session tracks one connected client within a room
// ARCHITECTURAL DISCOVERY: Session holds the diagram ID as a lookup key, never
// a pointer back to the room - arena maps break the user/session/room cycle
type Session struct {
	ID              string    `json:"id"`
	DiagramID       string    `json:"diagram_id"`
	UserID          string    `json:"user_id"`
	Role            string    `json:"role"`
	ConnectionState string    `json:"connection_state"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// Connection state constants for Session.ConnectionState
const (
	ConnStateConnected = "connected"
	ConnStateDegraded  = "degraded"
	ConnStateClosed    = "closed"
)

// Collaborator is a persisted roster entry for a diagram
type Collaborator struct {
	DiagramID string    `json:"diagram_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	InvitedAt time.Time `json:"invited_at"`
}

// CanEdit reports whether a role may originate changes
func CanEdit(role string) bool {
	return role == RoleOwner || role == RoleEditor
}

// positionKeys are the payload fields a pure move touches
// TECHNICAL DISCOVERY: Conflict classification keys off payload shape alone;
// the engine never interprets diagram semantics beyond this
var positionKeys = map[string]bool{
	"x":        true,
	"y":        true,
	"position": true,
}

// IsPositionOnly reports whether a change payload touches only coordinates
func (ch *Change) IsPositionOnly() bool {
	if ch.Type != ChangeNodeUpdate && ch.Type != ChangeEdgeUpdate {
		return false
	}
	if len(ch.Payload) == 0 {
		return false
	}
	for key := range ch.Payload {
		if !positionKeys[key] {
			return false
		}
	}
	return true
}
