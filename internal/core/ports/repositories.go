package ports

import (
	"context"

	"callhub/internal/core/domain"
)

// ConnectionRegistry owns every live connection record. Implementations are
// in-memory and perform no I/O.
type ConnectionRegistry interface {
	Register(id domain.ConnectionID, identity domain.Identity)
	SetRoom(id domain.ConnectionID, roomID domain.RoomID)
	SetMediaState(id domain.ConnectionID, update domain.MediaUpdate)
	Unregister(id domain.ConnectionID) domain.RoomID
	Get(id domain.ConnectionID) (domain.Connection, bool)
	Count() int
}

type JoinResult struct {
	IsNewRoom            bool
	AlreadyJoined        bool
	ExistingParticipants []domain.ParticipantInfo
}

type LeaveResult struct {
	Removed               bool
	RoomDestroyed         bool
	RemainingParticipants []domain.ParticipantInfo
}

// RoomDirectory tracks room membership. Each member record carries the
// identity of its connection so an instance can address and describe
// participants whose sockets another instance holds. Participant lists are
// sorted by connection id.
type RoomDirectory interface {
	Join(ctx context.Context, roomID domain.RoomID, member domain.ParticipantInfo, opts domain.RoomOptions) (JoinResult, error)
	Leave(ctx context.Context, roomID domain.RoomID, id domain.ConnectionID) (LeaveResult, error)
	// SetMedia updates the media state recorded for a member; it is a no-op
	// for connections that are not in the room.
	SetMedia(ctx context.Context, roomID domain.RoomID, id domain.ConnectionID, media domain.MediaState) error
	Members(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error)
	// Get returns domain.ErrRoomNotFound for rooms that do not exist.
	Get(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	Destroy(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error)
	Count(ctx context.Context) (int, error)
}

// SessionRepository stores the scheduled-session snapshot fed by the
// appointments service.
type SessionRepository interface {
	Get(ctx context.Context, id domain.SessionID) (*domain.ScheduledSession, error)
	Put(ctx context.Context, session *domain.ScheduledSession) error
	Delete(ctx context.Context, id domain.SessionID) error
}
