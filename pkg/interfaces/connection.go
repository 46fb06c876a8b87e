package interfaces

// Connection represents a websocket client connection interface
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between transport infrastructure and room logic
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented in interface
	// to ensure all implementations use single-writer pattern to prevent races
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the connected user's ID
	GetUserID() string

	// GetRole returns the user's room role ("owner", "editor" or "viewer")
	GetRole() string

	// GetDiagramID returns the diagram room this connection belongs to
	// ARCHITECTURAL DISCOVERY: Room scoping at connection level enables
	// efficient broadcast and room-based cleanup
	GetDiagramID() string

	// GetSessionID returns this connection's collaboration session ID
	GetSessionID() string

	// IsAuthenticated returns true once the identity provider accepted
	// the connection's credentials
	IsAuthenticated() bool

	// SetCredentials sets identity and room membership after authentication
	// TECHNICAL DISCOVERY: Separate authentication step allows websocket
	// upgrade before credential validation
	SetCredentials(userID, name, role, diagramID string) error
}
