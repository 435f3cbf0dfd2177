package repositories

import (
	"context"

	"callhub/internal/core/ports"
	"callhub/internal/infrastructure/repositories/memory"
	redisrepo "callhub/internal/infrastructure/repositories/redis"
	"callhub/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories, falling back to memory when Redis
// is disabled or unreachable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

// CreateConnectionRegistry is per-process: it only ever holds the sockets
// this instance terminates.
func (f *RepositoryFactory) CreateConnectionRegistry() ports.ConnectionRegistry {
	return memory.NewMemoryConnectionRegistry()
}

// CreateRoomDirectory is shared through Redis when available so that a room
// can span instances.
func (f *RepositoryFactory) CreateRoomDirectory() ports.RoomDirectory {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomDirectory(f.redisClient)
	}
	return memory.NewMemoryRoomDirectory()
}

func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSessionRepository(f.redisClient, 0)
	}
	return memory.NewMemorySessionRepository()
}

// RedisClient is nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
