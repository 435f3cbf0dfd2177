package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
)

// MemoryRoomDirectory is the single-process directory. It never fails.
type MemoryRoomDirectory struct {
	rooms map[domain.RoomID]*domain.Room
	mu    sync.RWMutex
}

func NewMemoryRoomDirectory() ports.RoomDirectory {
	return &MemoryRoomDirectory{
		rooms: make(map[domain.RoomID]*domain.Room),
	}
}

// Join adds member to the room, creating it on first use. ExistingParticipants
// is the membership as it was before this call and never contains the joiner.
func (r *MemoryRoomDirectory) Join(_ context.Context, roomID domain.RoomID, member domain.ParticipantInfo, opts domain.RoomOptions) (ports.JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		callType := opts.CallType
		if !callType.Valid() {
			callType = domain.CallTypeVideo
		}
		room = &domain.Room{
			ID:              roomID,
			CallType:        callType,
			Participants:    make(map[domain.ConnectionID]domain.ParticipantInfo),
			MaxParticipants: opts.MaxParticipants,
			CreatedAt:       time.Now(),
		}
		r.rooms[roomID] = room
	}

	_, already := room.Participants[member.ConnectionID]
	existing := snapshot(room, member.ConnectionID)
	room.Participants[member.ConnectionID] = member

	return ports.JoinResult{
		IsNewRoom:            !exists,
		AlreadyJoined:        already,
		ExistingParticipants: existing,
	}, nil
}

func (r *MemoryRoomDirectory) Leave(_ context.Context, roomID domain.RoomID, id domain.ConnectionID) (ports.LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return ports.LeaveResult{}, nil
	}
	if _, member := room.Participants[id]; !member {
		return ports.LeaveResult{RemainingParticipants: snapshot(room, "")}, nil
	}

	delete(room.Participants, id)
	if len(room.Participants) == 0 {
		delete(r.rooms, roomID)
		return ports.LeaveResult{Removed: true, RoomDestroyed: true}, nil
	}

	return ports.LeaveResult{
		Removed:               true,
		RemainingParticipants: snapshot(room, ""),
	}, nil
}

func (r *MemoryRoomDirectory) SetMedia(_ context.Context, roomID domain.RoomID, id domain.ConnectionID, media domain.MediaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, exists := r.rooms[roomID]; exists {
		if member, ok := room.Participants[id]; ok {
			member.Media = media
			room.Participants[id] = member
		}
	}
	return nil
}

func (r *MemoryRoomDirectory) Members(_ context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return []domain.ParticipantInfo{}, nil
	}
	return snapshot(room, ""), nil
}

func (r *MemoryRoomDirectory) Get(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return domain.Room{}, domain.ErrRoomNotFound
	}

	cp := *room
	cp.Participants = make(map[domain.ConnectionID]domain.ParticipantInfo, len(room.Participants))
	for id, member := range room.Participants {
		cp.Participants[id] = member
	}
	return cp, nil
}

// Destroy removes the room and returns everyone who was still in it.
func (r *MemoryRoomDirectory) Destroy(_ context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return nil, nil
	}

	delete(r.rooms, roomID)
	return snapshot(room, ""), nil
}

func (r *MemoryRoomDirectory) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}

// snapshot returns the members sorted by connection id, leaving out exclude.
func snapshot(room *domain.Room, exclude domain.ConnectionID) []domain.ParticipantInfo {
	members := make([]domain.ParticipantInfo, 0, len(room.Participants))
	for id, member := range room.Participants {
		if id != exclude {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ConnectionID < members[j].ConnectionID })
	return members
}
