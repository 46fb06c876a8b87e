package interfaces

import (
	"context"
	"encoding/json"

	"syncboard/pkg/types"
)

// PersistenceBackend handles durable storage for the collaboration engine
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type PersistenceBackend interface {
	// SaveSnapshot durably stores a diagram snapshot at a sequence point
	SaveSnapshot(ctx context.Context, diagramID string, seq uint64, data json.RawMessage) error

	// LatestSnapshot returns the most recent stored snapshot for a diagram
	LatestSnapshot(ctx context.Context, diagramID string) (json.RawMessage, uint64, error)

	// SaveComment persists a comment record
	// FUNCTIONAL DISCOVERY: Persist-then-broadcast keeps the comment stream
	// durable before any member observes it
	SaveComment(ctx context.Context, comment *types.Comment) error

	// UpdateCommentStatus records a one-way pending->resolved transition
	UpdateCommentStatus(ctx context.Context, commentID, status, resolvedBy string) error

	// LoadComments returns all comments for a diagram ordered by creation time
	LoadComments(ctx context.Context, diagramID string) ([]*types.Comment, error)

	// UpsertCollaborator adds or updates a roster entry
	UpsertCollaborator(ctx context.Context, collab *types.Collaborator) error

	// RemoveCollaborator deletes a roster entry
	RemoveCollaborator(ctx context.Context, diagramID, userID string) error

	// ListCollaborators returns the roster for a diagram
	ListCollaborators(ctx context.Context, diagramID string) ([]*types.Collaborator, error)

	// ArchiveChanges stores change log entries evicted from the in-memory log
	// TECHNICAL DISCOVERY: Archiving on eviction keeps the room log bounded
	// while preserving an audit trail of every numbered change
	ArchiveChanges(ctx context.Context, diagramID string, changes []types.Change) error

	// HealthCheck verifies backend connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the backend and cleans up resources
	Close() error
}
