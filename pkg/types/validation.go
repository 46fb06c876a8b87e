package types

import (
	"encoding/json"
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks user and diagram identifiers against format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and keeps identifiers displayable
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole checks membership roles against the allowed set
func IsValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// IsValidStatus checks presence status values against the allowed set
func IsValidStatus(status string) bool {
	switch status {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	default:
		return false
	}
}

// IsValidChangeType checks if the change type is one of the six mutation kinds
// ARCHITECTURAL DISCOVERY: Explicit validation prevents undefined mutation
// types from entering the synchronizer
func IsValidChangeType(changeType string) bool {
	switch changeType {
	case ChangeNodeAdd, ChangeNodeUpdate, ChangeNodeDelete,
		ChangeEdgeAdd, ChangeEdgeUpdate, ChangeEdgeDelete:
		return true
	default:
		return false
	}
}

// Validate ensures a change meets all requirements before it is numbered
func (ch *Change) Validate() error {
	if !IsValidChangeType(ch.Type) {
		return ErrInvalidChangeType
	}
	if ch.TargetID == "" {
		return ErrInvalidTargetID
	}
	if !IsValidID(ch.OriginUserID) {
		return ErrInvalidUserID
	}

	switch ch.Type {
	case ChangeNodeDelete, ChangeEdgeDelete:
		// Deletes carry no payload
	default:
		if len(ch.Payload) == 0 {
			return ErrEmptyPayload
		}
	}

	// TECHNICAL DISCOVERY: Size check requires marshaling, which adds overhead
	// but gives an accurate byte count for the wire limit
	payloadBytes, err := json.Marshal(ch.Payload)
	if err != nil {
		return ErrEmptyPayload
	}
	if len(payloadBytes) > 65536 {
		return ErrPayloadTooLarge
	}

	return nil
}

// Validate ensures a comment meets all requirements before persistence
func (c *Comment) Validate() error {
	if len(c.Content) < 1 || len(c.Content) > 4000 {
		return ErrInvalidContent
	}
	if !IsValidID(c.AuthorID) {
		return ErrInvalidUserID
	}
	return nil
}
