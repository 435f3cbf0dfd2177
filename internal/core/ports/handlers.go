package ports

import (
	"context"

	"callhub/internal/core/domain"
)

// SignalHandler is the transport-facing side of the signaling router.
type SignalHandler interface {
	Connect(ctx context.Context, id domain.ConnectionID, identity domain.Identity)
	Handle(ctx context.Context, env domain.Envelope)
	Disconnect(ctx context.Context, id domain.ConnectionID)
}
