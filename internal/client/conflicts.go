package client

import (
	"sort"

	"syncboard/pkg/types"
)

// TrackConflicts records conflicts surfaced by the room so the UI can
// present them for manual resolution
func (s *Synchronizer) TrackConflicts(conflicts []types.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conflict := range conflicts {
		s.conflicts[conflict.ID] = conflict
	}
}

// ConflictResolved clears a conflict after the room announces its terminal
// state. Resolutions arrive for every member, not just the resolver.
func (s *Synchronizer) ConflictResolved(conflict types.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conflicts, conflict.ID)
}

// PendingConflicts returns the unresolved conflicts ordered by detection time
func (s *Synchronizer) PendingConflicts() []types.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]types.Conflict, 0, len(s.conflicts))
	for _, conflict := range s.conflicts {
		pending = append(pending, conflict)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending
}

// ResolveConflict requests terminal resolution of a tracked conflict.
// The conflict stays pending until the room broadcasts conflict_resolved;
// resolution is authoritative server-side, never local.
func (s *Synchronizer) ResolveConflict(conflictID, resolution string, custom map[string]interface{}) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if _, tracked := s.conflicts[conflictID]; !tracked {
		s.mu.Unlock()
		return ErrUnknownConflict
	}
	s.mu.Unlock()

	return s.transport.Send(types.MsgResolveConflict, types.ResolveConflictPayload{
		ConflictID:       conflictID,
		Resolution:       resolution,
		CustomResolution: custom,
	})
}
