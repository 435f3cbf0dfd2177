package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultOutboxSize = 1024

var ErrOutboxFull = errors.New("fan-out outbox full")

// LocalPublisher is the in-process transport the bus wraps.
type LocalPublisher interface {
	ports.Publisher
	Has(id domain.ConnectionID) bool
}

// Frame is one message addressed to connections held by other instances.
type Frame struct {
	InstanceID string                `json:"instance_id"`
	Timestamp  time.Time             `json:"timestamp"`
	RoomID     domain.RoomID         `json:"room_id,omitempty"`
	Recipients []domain.ConnectionID `json:"recipients"`
	Message    *domain.Message       `json:"message"`
}

// EventBus implements ports.Publisher across processes. Recipients held by
// the local transport are served directly; the rest are published on a
// Redis channel that every instance subscribes to. Publishing is queued, so
// callers never wait on Redis.
type EventBus struct {
	client     *redis.Client
	local      LocalPublisher
	channel    string
	instanceID string
	outbox     chan *Frame
	observer   ports.RemoteObserver
	logger     *zap.SugaredLogger
}

var _ ports.Publisher = (*EventBus)(nil)

func NewEventBus(
	client *redis.Client,
	local LocalPublisher,
	channel string,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		local:      local,
		channel:    channel,
		instanceID: instanceID,
		outbox:     make(chan *Frame, defaultOutboxSize),
		logger:     logger,
	}
}

// Observe registers o to see every frame from another instance before its
// local recipients get it. Call it before Run.
func (eb *EventBus) Observe(o ports.RemoteObserver) {
	eb.observer = o
}

func (eb *EventBus) Send(ctx context.Context, to domain.ConnectionID, msg *domain.Message) error {
	if eb.local.Has(to) {
		return eb.local.Send(ctx, to, msg)
	}
	return eb.enqueue(&Frame{Recipients: []domain.ConnectionID{to}, Message: msg})
}

func (eb *EventBus) PublishToRoom(ctx context.Context, roomID domain.RoomID, recipients []domain.ConnectionID, msg *domain.Message) error {
	local, remote := eb.split(recipients)

	var err error
	if len(local) > 0 {
		err = eb.local.PublishToRoom(ctx, roomID, local, msg)
	}
	if len(remote) > 0 {
		err = errors.Join(err, eb.enqueue(&Frame{RoomID: roomID, Recipients: remote, Message: msg}))
	}
	return err
}

// Run publishes queued frames and delivers frames from other instances until
// ctx is cancelled.
func (eb *EventBus) Run(ctx context.Context) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", eb.channel, err)
	}
	eb.logger.Infow("fan-out bus subscribed", "channel", eb.channel, "instance_id", eb.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame := <-eb.outbox:
			eb.publish(ctx, frame)

		case msg, ok := <-ch:
			if !ok {
				return errors.New("fan-out subscription closed")
			}
			var frame Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				eb.logger.Warnw("failed to unmarshal frame", "error", err)
				continue
			}
			eb.deliver(ctx, &frame)
		}
	}
}

func (eb *EventBus) enqueue(frame *Frame) error {
	frame.InstanceID = eb.instanceID
	frame.Timestamp = time.Now()

	select {
	case eb.outbox <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (eb *EventBus) publish(ctx context.Context, frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		eb.logger.Warnw("failed to marshal frame", "error", err)
		return
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		eb.logger.Warnw("failed to publish frame",
			"event", frame.Message.Event,
			"room_id", frame.RoomID,
			"error", err,
		)
		return
	}
	eb.logger.Debugw("published frame", "event", frame.Message.Event, "recipients", len(frame.Recipients))
}

// deliver hands a frame from another instance to the local recipients it
// names, after the observer has seen it. Frames from this instance are
// skipped.
func (eb *EventBus) deliver(ctx context.Context, frame *Frame) {
	if frame.InstanceID == eb.instanceID || frame.Message == nil {
		return
	}

	local, _ := eb.split(frame.Recipients)
	if len(local) == 0 {
		return
	}
	if eb.observer != nil {
		eb.observer.ObserveRemote(ctx, local, frame.Message)
	}

	var err error
	if len(local) == 1 && frame.RoomID == "" {
		err = eb.local.Send(ctx, local[0], frame.Message)
	} else {
		err = eb.local.PublishToRoom(ctx, frame.RoomID, local, frame.Message)
	}
	if err != nil {
		eb.logger.Warnw("fan-out delivery failed",
			"from_instance", frame.InstanceID,
			"event", frame.Message.Event,
			"error", err,
		)
	}
}

func (eb *EventBus) split(recipients []domain.ConnectionID) (local, remote []domain.ConnectionID) {
	for _, id := range recipients {
		if eb.local.Has(id) {
			local = append(local, id)
		} else {
			remote = append(remote, id)
		}
	}
	return local, remote
}
