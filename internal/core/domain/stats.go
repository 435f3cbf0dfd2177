package domain

import "time"

// RoomSnapshot is a read-only view of a room used by inspection endpoints.
type RoomSnapshot struct {
	RoomID          RoomID         `json:"room_id"`
	CallType        CallType       `json:"call_type"`
	Participants    []ConnectionID `json:"participants"`
	Pending         []ConnectionID `json:"pending,omitempty"`
	MaxParticipants int            `json:"max_participants,omitempty"`
	// SessionStatus is empty for ad-hoc rooms.
	SessionStatus SessionStatus `json:"session_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type HubStats struct {
	Connections int       `json:"connections"`
	Rooms       int       `json:"rooms"`
	Timestamp   time.Time `json:"timestamp"`
}
