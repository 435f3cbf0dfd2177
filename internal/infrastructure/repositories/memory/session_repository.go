package memory

import (
	"context"
	"sync"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
)

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.ScheduledSession
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.ScheduledSession),
	}
}

func (r *MemorySessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.ScheduledSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	cp := *session
	return &cp, nil
}

func (r *MemorySessionRepository) Put(ctx context.Context, session *domain.ScheduledSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}
