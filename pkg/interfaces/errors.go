package interfaces

import "errors"

// Shared error definitions for cross-component boundaries
// ARCHITECTURAL DISCOVERY: Sentinel errors at the interface level let
// callers branch on failure class without depending on implementations
var (
	// ErrAuthFailed indicates the identity provider rejected the credentials
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPermissionDenied indicates the caller's role does not allow the operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoomNotFound indicates no active room exists for the diagram
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomClosed indicates the room has shut down and accepts no input
	ErrRoomClosed = errors.New("room closed")

	// ErrUnknownConflict indicates a resolution referenced a conflict that
	// does not exist or was already resolved
	ErrUnknownConflict = errors.New("unknown conflict")

	// ErrCommentNotFound indicates a resolve referenced a missing comment
	ErrCommentNotFound = errors.New("comment not found")

	// ErrSnapshotNotFound indicates no snapshot is stored for the diagram
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrConnectTimeout indicates the join handshake did not complete in time
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConnectionClosed indicates an operation on a closed connection
	ErrConnectionClosed = errors.New("connection closed")
)
