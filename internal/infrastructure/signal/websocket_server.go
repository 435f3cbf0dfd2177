package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/pkg/config"
	apperrors "callhub/pkg/errors"
	rlog "callhub/pkg/logger"
	"callhub/pkg/utils"
	"callhub/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxGuestNameLength = 64

var errMissingToken = errors.New("missing access token")

// inboundFrame is the wire shape of a client to server message. A sender is
// never read from the wire.
type inboundFrame struct {
	Event   string              `json:"event"`
	RoomID  domain.RoomID       `json:"room_id,omitempty"`
	Target  domain.ConnectionID `json:"target,omitempty"`
	Payload json.RawMessage     `json:"payload,omitempty"`
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64

	// Zero disables per-connection rate limiting.
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int

	AllowGuests    bool
	AllowedOrigins []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBufferSize: cfg.Signal.SendBufferSize,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowGuests:    cfg.Auth.AllowGuests,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		opts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		opts.Burst = cfg.RateLimiting.WebSocket.Burst
		opts.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return opts
}

// WebSocketServer terminates signaling sockets. It turns named events into
// envelopes for the SignalHandler and implements ports.Publisher for the
// connections it holds.
type WebSocketServer struct {
	identity ports.IdentityProvider
	handler  ports.SignalHandler
	opts     Options
	upgrader websocket.Upgrader

	clients map[domain.ConnectionID]*client
	mu      sync.RWMutex
	slots   chan struct{}
	wg      sync.WaitGroup

	logger *zap.SugaredLogger
}

var _ ports.Publisher = (*WebSocketServer)(nil)

func NewWebSocketServer(identity ports.IdentityProvider, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = opts.PingInterval * 2
	}

	s := &WebSocketServer{
		identity: identity,
		opts:     opts,
		clients:  make(map[domain.ConnectionID]*client),
		logger:   logger,
	}
	if opts.MaxConnections > 0 {
		s.slots = make(chan struct{}, opts.MaxConnections)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Bind attaches the envelope handler. The router needs the server as its
// publisher, so the two are wired in two steps.
func (s *WebSocketServer) Bind(handler ports.SignalHandler) {
	s.handler = handler
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.handler == nil {
		http.Error(w, "signaling not ready", http.StatusServiceUnavailable)
		return
	}

	identity, err := s.authenticate(r)
	if err != nil {
		s.logger.Infow("websocket rejected",
			"remote_addr", r.RemoteAddr,
			"token", utils.MaskSensitive(bearerToken(r), 6),
			"error", err,
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		default:
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), max(s.opts.Burst, 1))
	}
	id := domain.ConnectionID(utils.GenerateConnectionID())
	c := newClient(id, identity, conn, s.opts.SendBufferSize, limiter)

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	s.wg.Add(1)

	ctx := rlog.WithConnection(context.Background(), string(id), "")
	ctx = rlog.WithUserID(ctx, string(identity.UserID))

	go s.writePump(c)
	s.handler.Connect(ctx, id, identity)
	s.readPump(ctx, c)
}

func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()

		s.handler.Disconnect(ctx, c.id)
		c.close()
		c.conn.Close()
		s.release()
		s.wg.Done()
	}()

	if s.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if !c.allow() {
			s.reply(c, apperrors.NewSignalError(apperrors.CodeRateLimited, "too many messages"))
			continue
		}

		env, err := decodeFrame(c.id, data)
		if err != nil {
			s.logger.Debugw("malformed frame", "connection_id", c.id, "error", err)
			s.reply(c, apperrors.NewSignalError(apperrors.CodeInvalidEnvelope, "malformed signaling message"))
			continue
		}
		s.handler.Handle(ctx, env)
	}
}

func (s *WebSocketServer) writePump(c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Infow("websocket write failed", "connection_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "connection_id", c.id, "error", err)
				return
			}
		}
	}
}

// Send queues msg for one local connection without blocking.
func (s *WebSocketServer) Send(ctx context.Context, to domain.ConnectionID, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Event, err)
	}
	return s.deliver(to, data)
}

// PublishToRoom encodes msg once and queues it for every recipient held by
// this server.
func (s *WebSocketServer) PublishToRoom(ctx context.Context, roomID domain.RoomID, recipients []domain.ConnectionID, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Event, err)
	}

	var failed int
	var firstErr error
	for _, id := range recipients {
		if err := s.deliver(id, data); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("room %s: %d of %d deliveries failed: %w", roomID, failed, len(recipients), firstErr)
	}
	return nil
}

// Has reports whether id is a socket held by this server.
func (s *WebSocketServer) Has(id domain.ConnectionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[id]
	return ok
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown sends a going-away close to every socket and waits for their
// disconnects to be processed.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(s.opts.WriteTimeout)
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadline)
		c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("websocket server drained", "connections", len(clients))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebSocketServer) deliver(to domain.ConnectionID, data []byte) error {
	s.mu.RLock()
	c, ok := s.clients[to]
	s.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	err := c.trySend(data)
	if errors.Is(err, ErrSlowConsumer) {
		s.logger.Warnw("closing slow connection", "connection_id", to, "buffer", s.opts.SendBufferSize)
	}
	return err
}

func (s *WebSocketServer) reply(c *client, appErr *apperrors.AppError) {
	msg := domain.NewMessage(domain.EventError, "", "", domain.ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (s *WebSocketServer) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// authenticate resolves the caller from ?token= or a bearer header. Without
// a token the caller is a guest, if guests are allowed.
func (s *WebSocketServer) authenticate(r *http.Request) (domain.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		if !s.opts.AllowGuests {
			return domain.Identity{}, errMissingToken
		}
		identity := domain.GuestIdentity()
		identity.UserName = utils.DisplayName(r.URL.Query().Get("name"), maxGuestNameLength)
		if validation.ValidateUserName(identity.UserName) != nil {
			identity.UserName = utils.GenerateGuestName()
		}
		return identity, nil
	}

	if s.identity == nil {
		return domain.Identity{}, errors.New("token authentication not configured")
	}
	return s.identity.Identify(token)
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(origin, s.opts.AllowedOrigins)
}

func originAllowed(origin string, allowed []string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
			return true
		}
	}
	return false
}

func decodeFrame(sender domain.ConnectionID, data []byte) (domain.Envelope, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidEnvelope, err)
	}
	envType, ok := domain.EnvelopeTypeForEvent(frame.Event)
	if !ok {
		return domain.Envelope{}, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidEnvelope, frame.Event)
	}
	return domain.Envelope{
		Type:    envType,
		RoomID:  frame.RoomID,
		Sender:  sender,
		Target:  frame.Target,
		Payload: frame.Payload,
	}, nil
}
