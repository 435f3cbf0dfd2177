package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"callhub/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// MessageHandler consumes server frames in arrival order.
type MessageHandler interface {
	HandleMessage(msg *domain.Message) error
}

type outboundFrame struct {
	Event   string              `json:"event"`
	RoomID  domain.RoomID       `json:"room_id,omitempty"`
	Target  domain.ConnectionID `json:"target,omitempty"`
	Payload json.RawMessage     `json:"payload,omitempty"`
}

// Conn is the signaling socket of one client.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	once    sync.Once
}

// Dial connects to the signaling endpoint. An empty token joins as a guest;
// name is only used for guests.
func Dial(ctx context.Context, serverURL, token, name string, logger *zap.SugaredLogger) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	logger.Infow("connected to signaling server", "url", u.Redacted())
	return &Conn{ws: ws, logger: logger}, nil
}

// Signal implements Signaler.
func (c *Conn) Signal(event string, roomID domain.RoomID, target domain.ConnectionID, payload interface{}) error {
	frame := outboundFrame{Event: event, RoomID: roomID, Target: target}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		frame.Payload = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func (c *Conn) Join(roomID domain.RoomID, join domain.JoinPayload) error {
	return c.Signal(domain.EventJoinRoom, roomID, "", join)
}

func (c *Conn) Leave(roomID domain.RoomID) error {
	return c.Signal(domain.EventLeaveRoom, roomID, "", nil)
}

func (c *Conn) EndCall(roomID domain.RoomID) error {
	return c.Signal(domain.EventEndCall, roomID, "", nil)
}

func (c *Conn) ToggleAudio(roomID domain.RoomID, enabled bool) error {
	return c.Signal(domain.EventToggleAudio, roomID, "", domain.TogglePayload{Enabled: enabled})
}

func (c *Conn) ToggleVideo(roomID domain.RoomID, enabled bool) error {
	return c.Signal(domain.EventToggleVideo, roomID, "", domain.TogglePayload{Enabled: enabled})
}

// ApproveJoin admits a waiting connection; host only.
func (c *Conn) ApproveJoin(roomID domain.RoomID, waiting domain.ConnectionID) error {
	return c.Signal(domain.EventApproveJoin, roomID, waiting, nil)
}

func (c *Conn) DenyJoin(roomID domain.RoomID, waiting domain.ConnectionID) error {
	return c.Signal(domain.EventDenyJoin, roomID, waiting, nil)
}

// Run reads frames until the socket closes or ctx is done. Handler errors
// are logged and do not stop the loop.
func (c *Conn) Run(ctx context.Context, handler MessageHandler) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("dropping undecodable frame", "error", err)
			continue
		}
		c.logger.Debugw("frame received", "event", msg.Event, "from", msg.From, "room_id", msg.RoomID)

		if err := handler.HandleMessage(&msg); err != nil {
			c.logger.Warnw("failed to handle frame", "event", msg.Event, "from", msg.From, "error", err)
		}
	}
}

// Close sends a close frame and drops the socket. Safe to call twice.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		werr := c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			c.logger.Debugw("close frame not sent", "error", werr)
		}
		err = c.ws.Close()
	})
	return err
}
