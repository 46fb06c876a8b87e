package room

import "errors"

// Room lifecycle errors
var (
	ErrRoomClosed      = errors.New("room is closed")
	ErrInboundFull     = errors.New("room inbound queue is full")
	ErrNotMember       = errors.New("user is not a room member")
	ErrRegistryStopped = errors.New("room registry is stopped")
)
