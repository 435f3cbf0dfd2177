package memory

import (
	"sync"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
)

type MemoryConnectionRegistry struct {
	connections map[domain.ConnectionID]*domain.Connection
	mu          sync.RWMutex
}

func NewMemoryConnectionRegistry() ports.ConnectionRegistry {
	return &MemoryConnectionRegistry{
		connections: make(map[domain.ConnectionID]*domain.Connection),
	}
}

// Register is idempotent. Re-registering an id replaces the identity but keeps
// the room pointer and media state so a reconnect with the same id does not
// lose its membership.
func (r *MemoryConnectionRegistry) Register(id domain.ConnectionID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, exists := r.connections[id]; exists {
		conn.Identity = identity
		return
	}

	r.connections[id] = &domain.Connection{
		ID:       id,
		Identity: identity,
		Media:    domain.MediaState{AudioEnabled: true, VideoEnabled: true},
	}
}

func (r *MemoryConnectionRegistry) SetRoom(id domain.ConnectionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return
	}

	conn.RoomID = roomID
	if roomID == "" {
		conn.JoinedAt = time.Time{}
	} else {
		conn.JoinedAt = time.Now()
	}
}

func (r *MemoryConnectionRegistry) SetMediaState(id domain.ConnectionID, update domain.MediaUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, exists := r.connections[id]; exists {
		conn.Media = conn.Media.Apply(update)
	}
}

func (r *MemoryConnectionRegistry) Unregister(id domain.ConnectionID) domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return ""
	}

	delete(r.connections, id)
	return conn.RoomID
}

func (r *MemoryConnectionRegistry) Get(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Connection{}, false
	}
	return *conn, true
}

func (r *MemoryConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
