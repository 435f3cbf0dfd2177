package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/pkg/circuitbreaker"
	"callhub/pkg/retry"

	"go.uber.org/zap"
)

// SessionProviderWrapper guards session lookups with a timeout, retries and a
// circuit breaker. A missing session is an answer, not a failure: it is
// neither retried nor counted against the breaker.
type SessionProviderWrapper struct {
	provider ports.SessionProvider
	logger   *zap.SugaredLogger

	timeout        time.Duration
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewSessionProviderWrapper(
	provider ports.SessionProvider,
	timeout time.Duration,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SessionProviderWrapper {
	retryConfig.ShouldRetry = func(err error) bool {
		return !errors.Is(err, domain.ErrSessionNotFound) && !errors.Is(err, circuitbreaker.ErrOpen)
	}
	cbConfig.IsFailure = func(err error) bool {
		return !errors.Is(err, domain.ErrSessionNotFound)
	}

	wrapper := &SessionProviderWrapper{
		provider:       provider,
		logger:         logger,
		timeout:        timeout,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("session provider circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *SessionProviderWrapper) GetSession(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	session, err := retry.DoWithResult(ctx, w.retryConfig, func(ctx context.Context) (*domain.ScheduledSession, error) {
		return circuitbreaker.Execute(ctx, w.circuitBreaker, func(ctx context.Context) (*domain.ScheduledSession, error) {
			return w.provider.GetSession(ctx, roomID)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		w.logger.Warnw("session lookup failed", "room_id", roomID, "breaker", w.circuitBreaker.State().String(), "error", err)
		return nil, fmt.Errorf("get session %s: %w", roomID, err)
	}
	return session, nil
}

// BreakerState exposes the breaker for readiness reporting.
func (w *SessionProviderWrapper) BreakerState() circuitbreaker.State {
	return w.circuitBreaker.State()
}
