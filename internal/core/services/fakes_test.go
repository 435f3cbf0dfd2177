package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"callhub/internal/core/domain"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type delivery struct {
	to  domain.ConnectionID
	msg *domain.Message
}

// recordingPublisher captures every outbound message in delivery order.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []delivery
}

func (p *recordingPublisher) Send(_ context.Context, to domain.ConnectionID, msg *domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, delivery{to: to, msg: msg})
	return nil
}

func (p *recordingPublisher) PublishToRoom(_ context.Context, _ domain.RoomID, recipients []domain.ConnectionID, msg *domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, to := range recipients {
		p.sent = append(p.sent, delivery{to: to, msg: msg})
	}
	return nil
}

func (p *recordingPublisher) messages(to domain.ConnectionID) []*domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.Message
	for _, d := range p.sent {
		if d.to == to {
			out = append(out, d.msg)
		}
	}
	return out
}

func (p *recordingPublisher) events(to domain.ConnectionID) []string {
	var out []string
	for _, m := range p.messages(to) {
		out = append(out, m.Event)
	}
	return out
}

func (p *recordingPublisher) last(t *testing.T, to domain.ConnectionID) *domain.Message {
	t.Helper()
	msgs := p.messages(to)
	require.NotEmpty(t, msgs, "no messages delivered to %s", to)
	return msgs[len(msgs)-1]
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

// stubSessionProvider serves sessions from a map; rooms without an entry are ad-hoc.
type stubSessionProvider struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*domain.ScheduledSession
	err      error
	calls    int
}

func newStubSessionProvider(sessions ...*domain.ScheduledSession) *stubSessionProvider {
	p := &stubSessionProvider{sessions: make(map[domain.RoomID]*domain.ScheduledSession)}
	for _, s := range sessions {
		p.sessions[domain.SessionRoomID(s.ID)] = s
	}
	return p
}

func (p *stubSessionProvider) GetSession(_ context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.sessions[roomID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func decode[T any](t *testing.T, msg *domain.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
