package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "callhub:session:"
	sessionIndexKey  = "callhub:sessions"
)

// RedisSessionRepository stores scheduled-session snapshots as JSON values so
// that every signaling instance reads the same feed.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository returns a repository whose entries expire after
// ttl. Zero keeps them until deleted.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) ports.SessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func sessionKey(id domain.SessionID) string {
	return sessionKeyPrefix + string(id)
}

func (r *RedisSessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.ScheduledSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.ScheduledSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Put(ctx context.Context, session *domain.ScheduledSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, r.ttl)
	pipe.SAdd(ctx, sessionIndexKey, string(session.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, sessionIndexKey, string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
