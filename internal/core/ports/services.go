package ports

import (
	"context"

	"callhub/internal/core/domain"
)

// SessionProvider supplies read-only session metadata for a room. Rooms that
// are not backed by a scheduled session return domain.ErrSessionNotFound.
type SessionProvider interface {
	GetSession(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error)
}

// IdentityProvider resolves the caller of a new transport connection from a
// bearer token. Guest access for missing tokens is decided by the transport.
type IdentityProvider interface {
	Identify(token string) (domain.Identity, error)
}

// Publisher delivers outbound messages. Every room-wide notice must go through
// PublishToRoom so a fan-out adapter can reach participants hosted by other
// processes.
type Publisher interface {
	Send(ctx context.Context, to domain.ConnectionID, msg *domain.Message) error
	PublishToRoom(ctx context.Context, roomID domain.RoomID, recipients []domain.ConnectionID, msg *domain.Message) error
}

// RemoteObserver sees every message that arrives from another instance
// before it is handed to the local recipients.
type RemoteObserver interface {
	ObserveRemote(ctx context.Context, recipients []domain.ConnectionID, msg *domain.Message)
}

// SignalingMetrics is implemented by the Prometheus collector.
type SignalingMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	EnvelopeHandled(envelopeType domain.EnvelopeType, outcome string)
	RoomCreated()
	RoomDestroyed()
	Admission(decision string)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened()                            {}
func (noopMetrics) ConnectionClosed()                            {}
func (noopMetrics) EnvelopeHandled(domain.EnvelopeType, string) {}
func (noopMetrics) RoomCreated()                                 {}
func (noopMetrics) RoomDestroyed()                               {}
func (noopMetrics) Admission(string)                             {}

// NoopMetrics discards every observation.
func NoopMetrics() SignalingMetrics { return noopMetrics{} }
