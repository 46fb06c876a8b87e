package websocket

import (
	"log"
	"sync"
)

// Registry manages WebSocket connections with thread-safe operations
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and room semantics
type Registry struct {
	mu                 sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	globalConnections  map[string]*Connection            // userID -> Connection for O(1) global lookup
	diagramConnections map[string]map[string]*Connection // diagramID -> userID -> Connection
}

// NewRegistry creates a new connection registry
// FUNCTIONAL DISCOVERY: Initialize all maps to prevent nil pointer access during concurrent operations
func NewRegistry() *Registry {
	return &Registry{
		globalConnections:  make(map[string]*Connection),
		diagramConnections: make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds a connection to all appropriate maps atomically
// ARCHITECTURAL DISCOVERY: Connection replacement pattern coordinates with cleanup
// to prevent resource leaks while maintaining immediate registration
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	diagramID := conn.GetDiagramID()

	r.mu.Lock()
	defer r.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Close existing connection asynchronously to prevent deadlock
	// during registration while ensuring immediate replacement on reconnect
	if existingConn, exists := r.globalConnections[userID]; exists {
		go func() {
			if err := existingConn.Close(); err != nil {
				log.Printf("Failed to close existing connection: %v", err)
			}
		}() // Close asynchronously to avoid deadlock
	}

	// Add to global map for O(1) user lookup
	r.globalConnections[userID] = conn

	// Add to diagram map for efficient room broadcast
	if r.diagramConnections[diagramID] == nil {
		r.diagramConnections[diagramID] = make(map[string]*Connection)
	}
	r.diagramConnections[diagramID][userID] = conn

	return nil
}

// UnregisterConnection removes a specific connection from all maps atomically
// FUNCTIONAL DISCOVERY: Idempotent operation safe for concurrent unregistration
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	userID := conn.GetUserID()
	r.mu.Lock()
	defer r.mu.Unlock()

	registeredConn, exists := r.globalConnections[userID]
	if !exists {
		return // Idempotent - no error if connection doesn't exist
	}

	// Only unregister if this is the same connection instance that's registered
	// This prevents old connections from unregistering newer connections during cleanup
	if registeredConn != conn {
		return // Different connection is now registered, don't remove it
	}

	diagramID := conn.GetDiagramID()

	// Remove from global map
	delete(r.globalConnections, userID)

	// Remove from diagram map and clean up empty maps
	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if members, exists := r.diagramConnections[diagramID]; exists {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.diagramConnections, diagramID)
		}
	}
}

// GetUserConnection returns the current connection for a user with O(1) lookup
// ARCHITECTURAL DISCOVERY: Read-heavy access pattern benefits from RWMutex
// allowing concurrent reads without blocking during broadcast
func (r *Registry) GetUserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.globalConnections[userID]
	return conn, exists
}

// GetDiagramConnections returns all connections in a diagram room for broadcasting
func (r *Registry) GetDiagramConnections(diagramID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	if members, exists := r.diagramConnections[diagramID]; exists {
		for _, conn := range members {
			connections = append(connections, conn)
		}
	}

	return connections
}

// GetStats returns registry statistics for monitoring and debugging
// TECHNICAL DISCOVERY: Aggregate counters provide insight into registry
// state without exposing internal structure
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.globalConnections),
		"active_diagrams":   len(r.diagramConnections),
	}
}
