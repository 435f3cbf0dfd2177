package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/pkg/cache"
	"callhub/pkg/tracing"
)

type repositorySessionProvider struct {
	repo ports.SessionRepository
}

// NewRepositorySessionProvider serves session metadata straight from the
// snapshot store. Rooms map onto sessions one to one.
func NewRepositorySessionProvider(repo ports.SessionRepository) ports.SessionProvider {
	return &repositorySessionProvider{repo: repo}
}

func (p *repositorySessionProvider) GetSession(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	ctx, span := tracing.TraceSessionLookup(ctx, "store", string(roomID))
	defer span.End()

	session, err := p.repo.Get(ctx, domain.SessionID(roomID))
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		tracing.RecordError(ctx, err)
	}
	return session, err
}

// CachedSessionProvider keeps session lookups off the hot path. Misses are
// cached as well, so ad-hoc rooms cost one store round trip per TTL.
type CachedSessionProvider struct {
	base  ports.SessionProvider
	cache *cache.Cache[*domain.ScheduledSession]
}

func NewCachedSessionProvider(base ports.SessionProvider, ttl time.Duration) *CachedSessionProvider {
	return &CachedSessionProvider{
		base:  base,
		cache: cache.New[*domain.ScheduledSession](ttl),
	}
}

func sessionCacheKey(roomID domain.RoomID) string {
	return fmt.Sprintf("session:%s", roomID)
}

func (p *CachedSessionProvider) GetSession(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	session, err := p.cache.GetOrSet(ctx, sessionCacheKey(roomID), func(ctx context.Context) (*domain.ScheduledSession, error) {
		s, err := p.base.GetSession(ctx, roomID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil
		}
		return s, err
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	cp := *session
	return &cp, nil
}

// Invalidate drops the cached entry after the snapshot store changed.
func (p *CachedSessionProvider) Invalidate(id domain.SessionID) {
	p.cache.Delete(sessionCacheKey(domain.SessionRoomID(id)))
}

// Stop stops the cache cleanup
func (p *CachedSessionProvider) Stop() {
	p.cache.Stop()
}
