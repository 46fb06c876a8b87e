package presence

import (
	"sort"
	"sync"
	"time"

	"syncboard/pkg/types"
)

// Tracker maintains the live presence view for one diagram room
// ARCHITECTURAL DISCOVERY: Presence is last-writer-wins soft state kept
// apart from the change log; losing it on restart is harmless because
// members re-announce on reconnect
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*types.User
}

// NewTracker creates an empty presence tracker
func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[string]*types.User),
	}
}

// Join records a user entering the room
func (t *Tracker) Join(userID, name, role string) *types.User {
	t.mu.Lock()
	defer t.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Rejoin after reconnect keeps the same entry;
	// status flips back to online and the cursor survives
	if user, exists := t.users[userID]; exists {
		user.Status = types.StatusOnline
		user.Role = role
		user.LastSeenAt = time.Now()
		copy := *user
		return &copy
	}

	user := &types.User{
		ID:         userID,
		Name:       name,
		Role:       role,
		Status:     types.StatusOnline,
		LastSeenAt: time.Now(),
	}
	t.users[userID] = user
	copy := *user
	return &copy
}

// Leave removes a user from the presence view
func (t *Tracker) Leave(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// UpdateCursor records a user's latest cursor position
func (t *Tracker) UpdateCursor(userID string, position types.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	user, exists := t.users[userID]
	if !exists {
		return false
	}

	pos := position
	user.Cursor = &pos
	user.LastSeenAt = time.Now()
	return true
}

// UpdateStatus records an online/away transition
func (t *Tracker) UpdateStatus(userID, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	user, exists := t.users[userID]
	if !exists {
		return false
	}

	user.Status = status
	user.LastSeenAt = time.Now()
	return true
}

// Get returns a copy of one user's presence entry
func (t *Tracker) Get(userID string) (*types.User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	user, exists := t.users[userID]
	if !exists {
		return nil, false
	}
	copy := *user
	if user.Cursor != nil {
		cursor := *user.Cursor
		copy.Cursor = &cursor
	}
	return &copy, true
}

// GoToCursor returns the last known cursor position for a user
// FUNCTIONAL DISCOVERY: Jump-to-collaborator is a pure read of tracked
// state; it never triggers network traffic
func (t *Tracker) GoToCursor(userID string) (*types.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	user, exists := t.users[userID]
	if !exists || user.Cursor == nil {
		return nil, false
	}
	cursor := *user.Cursor
	return &cursor, true
}

// List returns all presence entries ordered by user ID
func (t *Tracker) List() []*types.User {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]*types.User, 0, len(t.users))
	for _, user := range t.users {
		copy := *user
		if user.Cursor != nil {
			cursor := *user.Cursor
			copy.Cursor = &cursor
		}
		users = append(users, &copy)
	}

	// Deterministic ordering for broadcasts and tests
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Count returns the number of users currently present
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
