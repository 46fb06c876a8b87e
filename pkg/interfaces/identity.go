package interfaces

import "context"

// Identity is the result of a successful authentication
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// IdentityProvider authenticates a connecting user and yields their role
// ARCHITECTURAL DISCOVERY: Credential verification abstracted to interface
// level allows token, static and test implementations behind one boundary
type IdentityProvider interface {
	// Authenticate validates credentials and returns the caller's identity.
	// A failure is fatal for that connection attempt and is never retried
	// automatically.
	Authenticate(ctx context.Context, credentials string) (Identity, error)
}
