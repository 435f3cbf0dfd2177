package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

const probeSessionID domain.SessionID = "__health_probe__"

func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddSessionStoreCheck reads a probe id from the snapshot store; not found
// counts as healthy.
func (h *HealthChecker) AddSessionStoreCheck(repo ports.SessionRepository, timeout time.Duration) {
	h.AddCheck("session_store", func(ctx context.Context) error {
		_, err := repo.Get(ctx, probeSessionID)
		if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}, timeout)
}

// AddBreakerCheck fails while the named breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State) {
	h.AddCheck(name, func(ctx context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", s)
		}
		return nil
	}, 0)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
