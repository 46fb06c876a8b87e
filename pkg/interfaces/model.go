package interfaces

import (
	"context"
	"encoding/json"

	"syncboard/pkg/types"
)

// ModelStore is the boundary to the authoritative diagram node/edge graph
// ARCHITECTURAL DISCOVERY: The sync engine only transports and reconciles
// intent; reading and patching the graph is delegated entirely to this store
type ModelStore interface {
	// GetSnapshot returns the current model for a diagram as raw JSON,
	// together with the last sequence number folded into it.
	// The returned snapshot is read-only from the caller's perspective
	// and must never be mutated in place.
	GetSnapshot(ctx context.Context, diagramID string) (json.RawMessage, uint64, error)

	// ApplyChange folds one numbered change into the diagram model.
	// FUNCTIONAL DISCOVERY: Apply is idempotent at the store level for
	// repeated change IDs so replay after resync is harmless
	ApplyChange(ctx context.Context, diagramID string, change types.Change) error
}
