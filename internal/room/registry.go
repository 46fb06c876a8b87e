package room

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// SnapshotLoader is implemented by model stores that can restore a
// diagram from a persisted snapshot
type SnapshotLoader interface {
	LoadSnapshot(diagramID string, data json.RawMessage, seq uint64) error
}

// Registry owns the set of active rooms, one per diagram
// ARCHITECTURAL DISCOVERY: Rooms are created lazily on first admission
// and reaped when idle so the arena scales with live collaboration, not
// with the total number of diagrams
type Registry struct {
	cfg     Config
	model   interfaces.ModelStore
	backend interfaces.PersistenceBackend // nil disables persistence

	mu      sync.RWMutex
	rooms   map[string]*Room
	stopped bool

	idleTTL      time.Duration
	reapInterval time.Duration
	shutdown     chan struct{}
	reaperDone   chan struct{}
}

// NewRegistry creates a room registry and starts its idle reaper
func NewRegistry(modelStore interfaces.ModelStore, backend interfaces.PersistenceBackend, cfg Config) *Registry {
	reg := &Registry{
		cfg:          cfg,
		model:        modelStore,
		backend:      backend,
		rooms:        make(map[string]*Room),
		idleTTL:      10 * time.Minute,
		reapInterval: time.Minute,
		shutdown:     make(chan struct{}),
		reaperDone:   make(chan struct{}),
	}

	go reg.reapLoop()
	return reg
}

// Admit resolves the caller's role, sets connection credentials and
// registers the connection with the diagram's room
func (reg *Registry) Admit(ctx context.Context, conn interfaces.Connection, identity interfaces.Identity, diagramID string) (*Room, error) {
	role, err := reg.resolveRole(ctx, diagramID, identity)
	if err != nil {
		return nil, err
	}

	if err := conn.SetCredentials(identity.UserID, identity.Name, role, diagramID); err != nil {
		return nil, err
	}

	room, err := reg.getOrCreate(ctx, diagramID)
	if err != nil {
		return nil, err
	}

	if err := room.admit(conn, identity.Name, role); err != nil {
		return nil, err
	}
	return room, nil
}

// resolveRole determines the per-diagram role for an identity
// FUNCTIONAL DISCOVERY: The first user to ever join a diagram becomes its
// owner; later joiners take their roster role or fall back to the token's
func (reg *Registry) resolveRole(ctx context.Context, diagramID string, identity interfaces.Identity) (string, error) {
	if reg.backend == nil {
		if types.IsValidRole(identity.Role) {
			return identity.Role, nil
		}
		return types.RoleViewer, nil
	}

	roster, err := reg.backend.ListCollaborators(ctx, diagramID)
	if err != nil {
		return "", err
	}

	for _, collab := range roster {
		if collab.UserID == identity.UserID {
			return collab.Role, nil
		}
	}

	if len(roster) == 0 {
		collab := &types.Collaborator{
			DiagramID: diagramID,
			UserID:    identity.UserID,
			Role:      types.RoleOwner,
			InvitedBy: identity.UserID,
			InvitedAt: time.Now().UTC(),
		}
		if err := reg.backend.UpsertCollaborator(ctx, collab); err != nil {
			return "", err
		}
		return types.RoleOwner, nil
	}

	if types.IsValidRole(identity.Role) {
		return identity.Role, nil
	}
	return types.RoleViewer, nil
}

// getOrCreate returns the room for a diagram, creating it on first use
func (reg *Registry) getOrCreate(ctx context.Context, diagramID string) (*Room, error) {
	reg.mu.RLock()
	if room, exists := reg.rooms[diagramID]; exists {
		reg.mu.RUnlock()
		return room, nil
	}
	stopped := reg.stopped
	reg.mu.RUnlock()

	if stopped {
		return nil, ErrRegistryStopped
	}

	// Restore persisted state before the room goes live
	reg.restoreSnapshot(ctx, diagramID)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.stopped {
		return nil, ErrRegistryStopped
	}
	// Another admission may have created the room while unlocked
	if room, exists := reg.rooms[diagramID]; exists {
		return room, nil
	}

	room, err := newRoom(ctx, diagramID, reg.cfg, reg.model, reg.backend)
	if err != nil {
		return nil, err
	}
	reg.rooms[diagramID] = room
	log.Printf("Room created for diagram %s", diagramID)
	return room, nil
}

// restoreSnapshot seeds the model store from the latest persisted snapshot
func (reg *Registry) restoreSnapshot(ctx context.Context, diagramID string) {
	if reg.backend == nil {
		return
	}
	loader, ok := reg.model.(SnapshotLoader)
	if !ok {
		return
	}

	data, seq, err := reg.backend.LatestSnapshot(ctx, diagramID)
	if err != nil {
		if err != interfaces.ErrSnapshotNotFound {
			log.Printf("Snapshot restore failed for diagram %s: %v", diagramID, err)
		}
		return
	}
	if err := loader.LoadSnapshot(diagramID, data, seq); err != nil {
		log.Printf("Snapshot load failed for diagram %s: %v", diagramID, err)
	}
}

// Get returns the active room for a diagram
func (reg *Registry) Get(diagramID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, exists := reg.rooms[diagramID]
	return room, exists
}

// ListStats returns monitoring stats for every active room
func (reg *Registry) ListStats() []Stats {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	stats := make([]Stats, 0, len(rooms))
	for _, room := range rooms {
		stats = append(stats, room.Stats())
	}
	return stats
}

// reapLoop closes rooms that have had no members for the idle TTL
// TECHNICAL DISCOVERY: Empty rooms are only closed after a grace period
// so a brief full-room disconnect does not discard the change log
func (reg *Registry) reapLoop() {
	defer close(reg.reaperDone)

	idleSince := make(map[string]time.Time)
	ticker := time.NewTicker(reg.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			reg.mu.RLock()
			candidates := make(map[string]*Room, len(reg.rooms))
			for diagramID, room := range reg.rooms {
				candidates[diagramID] = room
			}
			reg.mu.RUnlock()

			for diagramID, room := range candidates {
				if room.MemberCount() > 0 {
					delete(idleSince, diagramID)
					continue
				}
				since, tracked := idleSince[diagramID]
				if !tracked {
					idleSince[diagramID] = now
					continue
				}
				if now.Sub(since) >= reg.idleTTL {
					reg.mu.Lock()
					delete(reg.rooms, diagramID)
					reg.mu.Unlock()
					room.Close()
					delete(idleSince, diagramID)
					log.Printf("Idle room reaped for diagram %s", diagramID)
				}
			}

		case <-reg.shutdown:
			return
		}
	}
}

// Shutdown closes every room and stops the reaper
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	if reg.stopped {
		reg.mu.Unlock()
		return
	}
	reg.stopped = true
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	close(reg.shutdown)
	<-reg.reaperDone

	for _, room := range rooms {
		room.Close()
	}
	log.Printf("Room registry shut down, %d rooms closed", len(rooms))
}
