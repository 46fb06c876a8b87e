package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"syncboard/pkg/types"
)

// diagramState holds the node/edge graph for one diagram
// TECHNICAL DISCOVERY: Payload maps stored as-is keeps the store agnostic
// to the element vocabulary used by the editing surface
type diagramState struct {
	Nodes map[string]map[string]interface{} `json:"nodes"`
	Edges map[string]map[string]interface{} `json:"edges"`

	lastSeq    uint64
	appliedIDs map[string]struct{}
}

func newDiagramState() *diagramState {
	return &diagramState{
		Nodes:      make(map[string]map[string]interface{}),
		Edges:      make(map[string]map[string]interface{}),
		appliedIDs: make(map[string]struct{}),
	}
}

// Store is the in-memory authoritative diagram model
// ARCHITECTURAL DISCOVERY: Rooms fold numbered changes here so full sync
// can hand a late joiner one snapshot instead of the whole change history
type Store struct {
	mu       sync.RWMutex
	diagrams map[string]*diagramState
	cache    *SnapshotCache // optional, nil disables caching
}

// NewStore creates a new model store. The cache may be nil.
func NewStore(cache *SnapshotCache) *Store {
	return &Store{
		diagrams: make(map[string]*diagramState),
		cache:    cache,
	}
}

// GetSnapshot returns the current model for a diagram as raw JSON together
// with the last sequence number folded into it
func (s *Store) GetSnapshot(ctx context.Context, diagramID string) (json.RawMessage, uint64, error) {
	// FUNCTIONAL DISCOVERY: Cache consulted first so repeated full syncs
	// during reconnect storms do not re-marshal the whole graph
	if s.cache != nil {
		if data, seq, ok := s.cache.Get(ctx, diagramID); ok {
			s.mu.RLock()
			current := uint64(0)
			if state, exists := s.diagrams[diagramID]; exists {
				current = state.lastSeq
			}
			s.mu.RUnlock()
			if seq == current {
				return data, seq, nil
			}
		}
	}

	s.mu.RLock()
	state, exists := s.diagrams[diagramID]
	if !exists {
		s.mu.RUnlock()
		// Unknown diagram is an empty model, not an error, so new rooms
		// can full-sync before their first change
		return json.RawMessage(`{"nodes":{},"edges":{}}`), 0, nil
	}

	data, err := json.Marshal(state)
	seq := state.lastSeq
	s.mu.RUnlock()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal diagram %s: %w", diagramID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, diagramID, data, seq); err != nil {
			// Cache failures degrade to direct marshaling, never fail a sync
			log.Printf("Snapshot cache write failed for diagram %s: %v", diagramID, err)
		}
	}

	return data, seq, nil
}

// ApplyChange folds one numbered change into the diagram model
// FUNCTIONAL DISCOVERY: Idempotent by change ID so replay after resync
// is harmless
func (s *Store) ApplyChange(ctx context.Context, diagramID string, change types.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.diagrams[diagramID]
	if !exists {
		state = newDiagramState()
		s.diagrams[diagramID] = state
	}

	if _, applied := state.appliedIDs[change.ID]; applied {
		return nil
	}

	var err error
	switch change.Type {
	case types.ChangeNodeAdd:
		state.Nodes[change.TargetID] = clonePayload(change.Payload)
	case types.ChangeNodeUpdate:
		err = mergeElement(state.Nodes, change.TargetID, change.Payload)
	case types.ChangeNodeDelete:
		delete(state.Nodes, change.TargetID)
	case types.ChangeEdgeAdd:
		state.Edges[change.TargetID] = clonePayload(change.Payload)
	case types.ChangeEdgeUpdate:
		err = mergeElement(state.Edges, change.TargetID, change.Payload)
	case types.ChangeEdgeDelete:
		delete(state.Edges, change.TargetID)
	default:
		return ErrUnknownChangeType
	}
	if err != nil {
		return fmt.Errorf("failed to apply change %s: %w", change.ID, err)
	}

	state.appliedIDs[change.ID] = struct{}{}
	if change.SequenceNumber > state.lastSeq {
		state.lastSeq = change.SequenceNumber
	}

	// TECHNICAL DISCOVERY: Invalidate instead of rewrite keeps the write
	// path cheap; the next snapshot request repopulates the cache
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, diagramID); err != nil {
			log.Printf("Snapshot cache invalidation failed for diagram %s: %v", diagramID, err)
		}
	}

	return nil
}

// LastSeq returns the highest sequence number folded into a diagram
func (s *Store) LastSeq(diagramID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, exists := s.diagrams[diagramID]; exists {
		return state.lastSeq
	}
	return 0
}

// LoadSnapshot seeds a diagram from a persisted snapshot
// FUNCTIONAL DISCOVERY: Rooms restore from the persistence backend on
// first admit so a server restart does not lose the diagram
func (s *Store) LoadSnapshot(diagramID string, data json.RawMessage, seq uint64) error {
	state := newDiagramState()
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot for diagram %s: %w", diagramID, err)
	}
	if state.Nodes == nil {
		state.Nodes = make(map[string]map[string]interface{})
	}
	if state.Edges == nil {
		state.Edges = make(map[string]map[string]interface{})
	}
	state.lastSeq = seq

	s.mu.Lock()
	s.diagrams[diagramID] = state
	s.mu.Unlock()
	return nil
}

// mergeElement folds update payload keys into an existing element
func mergeElement(elements map[string]map[string]interface{}, targetID string, payload map[string]interface{}) error {
	element, exists := elements[targetID]
	if !exists {
		return ErrUnknownTarget
	}
	for key, value := range payload {
		element[key] = value
	}
	return nil
}

// clonePayload copies a payload map so later mutations of the change do
// not leak into stored state
func clonePayload(payload map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		clone[key] = value
	}
	return clone
}
