package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID     = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidDiagramID  = errors.New("diagram ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole       = errors.New("invalid role: must be 'owner', 'editor' or 'viewer'")
	ErrInvalidStatus     = errors.New("invalid presence status: must be 'online', 'away' or 'offline'")
	ErrInvalidChangeType = errors.New("invalid change type")
	ErrInvalidTargetID   = errors.New("change target ID is required")
	ErrEmptyPayload      = errors.New("change payload is required for add/update types")
	ErrPayloadTooLarge   = errors.New("change payload exceeds 64KB limit")
	ErrInvalidContent    = errors.New("comment content must be 1-4000 characters")
	ErrMalformedMessage  = errors.New("malformed message envelope")
)
