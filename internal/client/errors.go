package client

import "errors"

var (
	// ErrSessionClosed indicates the session was closed and will not reconnect
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected indicates a send was attempted while the transport is down
	ErrNotConnected = errors.New("session not connected")

	// ErrJoinRejected indicates the server refused room admission
	ErrJoinRejected = errors.New("join rejected by server")

	// ErrEmptyComment indicates a comment with no content was rejected locally
	ErrEmptyComment = errors.New("comment content is empty")

	// ErrUnknownConflict indicates a resolution referenced no pending conflict
	ErrUnknownConflict = errors.New("unknown or already resolved conflict")
)
