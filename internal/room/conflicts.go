package room

import (
	"time"

	"github.com/google/uuid"

	"syncboard/pkg/types"
)

// detector tracks unresolved conflicts for one room
// ARCHITECTURAL DISCOVERY: Conflicts are room-local soft state; once
// resolved they leave the map and only the resulting change persists
type detector struct {
	pending  map[string]*types.Conflict
	byTarget map[string]string
	held     map[string][]types.Change
}

func newDetector() *detector {
	return &detector{
		pending:  make(map[string]*types.Conflict),
		byTarget: make(map[string]string),
		held:     make(map[string][]types.Change),
	}
}

// detect checks a proposal against the already-numbered change history.
// A proposal conflicts with the newest accepted change on the same target
// that the proposer had not yet acknowledged when proposing.
func (d *detector) detect(proposal types.Change, log *changeLog, proposerAck uint64) *types.Conflict {
	accepted, found := log.latestForTarget(proposal.TargetID, proposerAck)
	if !found {
		return nil
	}
	// A user never conflicts with their own accepted changes
	if accepted.OriginUserID == proposal.OriginUserID {
		return nil
	}

	conflict := &types.Conflict{
		ID:             uuid.New().String(),
		Type:           classifyType(accepted, proposal),
		Classification: classifyScope(accepted, proposal),
		TargetID:       proposal.TargetID,
		LocalChange:    accepted,
		RemoteChange:   proposal,
		InvolvedUsers:  []string{accepted.OriginUserID, proposal.OriginUserID},
		CreatedAt:      time.Now().UTC(),
	}
	return conflict
}

// classifyType distinguishes two users editing the same element from a
// proposal built against an element that changed shape underneath it
func classifyType(accepted, proposal types.Change) string {
	if isUpdate(accepted.Type) && isUpdate(proposal.Type) {
		return types.ConflictConcurrentEdit
	}
	return types.ConflictVersionMismatch
}

// classifyScope decides whether a conflict touches only element position
// FUNCTIONAL DISCOVERY: Position races are visually self-correcting, so
// they qualify for automatic resolution; structural edits never do
func classifyScope(accepted, proposal types.Change) string {
	if accepted.IsPositionOnly() && proposal.IsPositionOnly() {
		return types.ClassPosition
	}
	return types.ClassEdit
}

func isUpdate(changeType string) bool {
	return changeType == types.ChangeNodeUpdate || changeType == types.ChangeEdgeUpdate
}

// register stores a conflict awaiting explicit resolution
func (d *detector) register(conflict *types.Conflict) {
	d.pending[conflict.ID] = conflict
	d.byTarget[conflict.TargetID] = conflict.ID
}

// take removes and returns a pending conflict
func (d *detector) take(conflictID string) (*types.Conflict, bool) {
	conflict, exists := d.pending[conflictID]
	if exists {
		delete(d.pending, conflictID)
		delete(d.byTarget, conflict.TargetID)
	}
	return conflict, exists
}

// blocked reports whether a target element has an unresolved conflict.
// Changes to such a target must not broadcast until resolution.
func (d *detector) blocked(targetID string) bool {
	_, exists := d.byTarget[targetID]
	return exists
}

// hold queues a proposal for a target blocked by an open conflict
func (d *detector) hold(proposal types.Change) {
	d.held[proposal.TargetID] = append(d.held[proposal.TargetID], proposal)
}

// release returns and clears the proposals held for a target
func (d *detector) release(targetID string) []types.Change {
	held := d.held[targetID]
	delete(d.held, targetID)
	return held
}

// pendingCount returns the number of unresolved conflicts
func (d *detector) pendingCount() int {
	return len(d.pending)
}

// resolutionChange builds the change that a resolution applies to the room.
// Every resolution path produces a freshly numbered change so the total
// order stays contiguous.
func resolutionChange(conflict *types.Conflict, resolution string, custom map[string]interface{}, resolvedBy string) types.Change {
	switch resolution {
	case types.ResolveLocal:
		// Keep the first accepted change: re-issue its payload so members
		// that already applied the proposal converge back
		return types.Change{
			ID:           uuid.New().String(),
			Type:         conflict.LocalChange.Type,
			TargetID:     conflict.TargetID,
			Payload:      conflict.LocalChange.Payload,
			OriginUserID: resolvedBy,
			Timestamp:    time.Now().UTC(),
		}
	case types.ResolveRemote:
		// Accept the later proposal as a fresh change
		return types.Change{
			ID:           uuid.New().String(),
			Type:         conflict.RemoteChange.Type,
			TargetID:     conflict.TargetID,
			Payload:      conflict.RemoteChange.Payload,
			OriginUserID: conflict.RemoteChange.OriginUserID,
			Timestamp:    time.Now().UTC(),
		}
	default:
		// Custom merge payload supplied by the resolver
		return types.Change{
			ID:           uuid.New().String(),
			Type:         conflict.RemoteChange.Type,
			TargetID:     conflict.TargetID,
			Payload:      custom,
			OriginUserID: resolvedBy,
			Timestamp:    time.Now().UTC(),
		}
	}
}
