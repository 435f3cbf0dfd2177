package domain

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRoomFull           = errors.New("room full")
	ErrInvalidEnvelope    = errors.New("invalid envelope")
	ErrStaleTarget        = errors.New("stale target")
	ErrSessionEnded       = errors.New("session ended")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionUnavailable = errors.New("session metadata unavailable")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotInRoom          = errors.New("not in room")
	ErrNotPending         = errors.New("no pending join request")
)
