package domain

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionEnded     SessionStatus = "ended"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionLive, SessionEnded:
		return true
	}
	return false
}

// ScheduledSession is the read-only snapshot of a session owned by the
// appointments service. The signaling core never persists it.
type ScheduledSession struct {
	ID                 SessionID     `json:"id"`
	HostID             UserID        `json:"host_id"`
	RequiresPassword   bool          `json:"requires_password"`
	PasswordHash       string        `json:"password_hash,omitempty"`
	MaxParticipants    int           `json:"max_participants"`
	WaitingRoomEnabled bool          `json:"waiting_room_enabled"`
	AllowGuests        bool          `json:"allow_guests"`
	Status             SessionStatus `json:"status"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (s *ScheduledSession) IsHost(userID UserID) bool {
	return s.HostID != "" && s.HostID == userID
}
