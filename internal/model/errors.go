package model

import "errors"

var (
	// ErrUnknownChangeType indicates a change type the store cannot fold
	ErrUnknownChangeType = errors.New("unknown change type")

	// ErrUnknownTarget indicates an update or delete for a missing element
	ErrUnknownTarget = errors.New("unknown target element")
)
