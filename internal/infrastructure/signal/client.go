package signal

import (
	"errors"
	"sync"

	"callhub/internal/core/domain"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSlowConsumer       = errors.New("send buffer full")
)

// client is one upgraded socket. Outbound frames go through send and are
// written by the write pump only; a full buffer closes the client instead of
// blocking the caller.
type client struct {
	id       domain.ConnectionID
	identity domain.Identity
	conn     *websocket.Conn
	send     chan []byte
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func newClient(id domain.ConnectionID, identity domain.Identity, conn *websocket.Conn, bufferSize int, limiter *rate.Limiter) *client {
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		limiter:  limiter,
	}
}

func (c *client) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSlowConsumer
	}
}

// allow reports whether one more inbound frame fits the rate limit.
func (c *client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
