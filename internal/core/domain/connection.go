package domain

import "time"

type ConnectionID string

// Connection is one live transport socket. RoomID is empty while the
// connection is not joined to any room.
type Connection struct {
	ID       ConnectionID
	Identity Identity
	RoomID   RoomID
	Media    MediaState
	JoinedAt time.Time
}

type MediaState struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

// MediaUpdate is a partial media state change; nil fields are left untouched.
type MediaUpdate struct {
	Audio *bool
	Video *bool
}

func (m MediaState) Apply(u MediaUpdate) MediaState {
	if u.Audio != nil {
		m.AudioEnabled = *u.Audio
	}
	if u.Video != nil {
		m.VideoEnabled = *u.Video
	}
	return m
}
