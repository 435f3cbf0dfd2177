package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AdmissionDecision string

const (
	AdmissionAdmit  AdmissionDecision = "admit"
	AdmissionWait   AdmissionDecision = "wait"
	AdmissionReject AdmissionDecision = "reject"
)

type JoinRequest struct {
	RoomID       domain.RoomID
	ConnectionID domain.ConnectionID
	Identity     domain.Identity
	Password     string
	Options      domain.RoomOptions
}

type Admission struct {
	Decision AdmissionDecision
	Reason   error
	// Session is nil for ad-hoc rooms.
	Session *domain.ScheduledSession
}

// sessionState is the in-process lifecycle of one scheduled session. The
// snapshot from the provider is never written back.
type sessionState struct {
	status  domain.SessionStatus
	pending map[domain.ConnectionID]JoinRequest
}

// SessionController decides whether a join is admitted, queued in the waiting
// room or rejected. States move scheduled -> live -> ended; ended is terminal.
type SessionController struct {
	provider ports.SessionProvider
	states   map[domain.RoomID]*sessionState
	mu       sync.Mutex
	logger   *zap.SugaredLogger
}

func NewSessionController(provider ports.SessionProvider, logger *zap.SugaredLogger) *SessionController {
	return &SessionController{
		provider: provider,
		states:   make(map[domain.RoomID]*sessionState),
		logger:   logger,
	}
}

// RequestJoin evaluates a join against the session snapshot. participants is
// the current size of the room's participant set.
func (c *SessionController) RequestJoin(ctx context.Context, req JoinRequest, participants int) Admission {
	session, err := c.lookup(ctx, req.RoomID)
	if err != nil {
		return Admission{Decision: AdmissionReject, Reason: err}
	}
	if session == nil {
		return Admission{Decision: AdmissionAdmit}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.stateFor(req.RoomID, session)
	if state.status == domain.SessionEnded {
		return Admission{Decision: AdmissionReject, Reason: domain.ErrSessionEnded, Session: session}
	}

	if isHost(session, req.Identity) {
		return Admission{Decision: AdmissionAdmit, Session: session}
	}

	if req.Identity.IsGuest() && !session.AllowGuests {
		return Admission{Decision: AdmissionReject, Reason: domain.ErrUnauthorized, Session: session}
	}

	if session.RequiresPassword {
		if req.Password == "" || bcrypt.CompareHashAndPassword([]byte(session.PasswordHash), []byte(req.Password)) != nil {
			return Admission{Decision: AdmissionReject, Reason: domain.ErrUnauthorized, Session: session}
		}
	}

	if session.MaxParticipants > 0 && participants >= session.MaxParticipants {
		return Admission{Decision: AdmissionReject, Reason: domain.ErrRoomFull, Session: session}
	}

	if session.WaitingRoomEnabled {
		state.pending[req.ConnectionID] = req
		return Admission{Decision: AdmissionWait, Session: session}
	}

	return Admission{Decision: AdmissionAdmit, Session: session}
}

// Approve releases a waiting request. Only the session host may approve, and
// capacity is checked again against the room as it is now.
func (c *SessionController) Approve(ctx context.Context, roomID domain.RoomID, approver domain.Identity, target domain.ConnectionID, participants int) (JoinRequest, *domain.ScheduledSession, error) {
	session, req, err := c.takePending(ctx, roomID, approver, target)
	if err != nil {
		return JoinRequest{}, nil, err
	}

	if session.MaxParticipants > 0 && participants >= session.MaxParticipants {
		return req, session, domain.ErrRoomFull
	}
	return req, session, nil
}

// Deny drops a waiting request on the host's behalf.
func (c *SessionController) Deny(ctx context.Context, roomID domain.RoomID, approver domain.Identity, target domain.ConnectionID) (JoinRequest, error) {
	_, req, err := c.takePending(ctx, roomID, approver, target)
	return req, err
}

func (c *SessionController) takePending(ctx context.Context, roomID domain.RoomID, approver domain.Identity, target domain.ConnectionID) (*domain.ScheduledSession, JoinRequest, error) {
	session, err := c.lookup(ctx, roomID)
	if err != nil {
		return nil, JoinRequest{}, err
	}
	if session == nil {
		return nil, JoinRequest{}, domain.ErrNotPending
	}
	if !isHost(session, approver) {
		return nil, JoinRequest{}, domain.ErrUnauthorized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, exists := c.states[roomID]
	if !exists {
		return nil, JoinRequest{}, domain.ErrNotPending
	}
	req, waiting := state.pending[target]
	if !waiting {
		return nil, JoinRequest{}, domain.ErrNotPending
	}
	delete(state.pending, target)
	return session, req, nil
}

// CancelPending removes the waiting requests made by id, except one for keep,
// and returns them.
func (c *SessionController) CancelPending(id domain.ConnectionID, keep domain.RoomID) []JoinRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cancelled []JoinRequest
	for roomID, state := range c.states {
		if roomID == keep {
			continue
		}
		if req, waiting := state.pending[id]; waiting {
			delete(state.pending, id)
			cancelled = append(cancelled, req)
		}
	}
	return cancelled
}

// Pending lists the connections waiting for approval in roomID.
func (c *SessionController) Pending(roomID domain.RoomID) []JoinRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, exists := c.states[roomID]
	if !exists {
		return nil
	}

	reqs := make([]JoinRequest, 0, len(state.pending))
	for _, req := range state.pending {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ConnectionID < reqs[j].ConnectionID })
	return reqs
}

// MarkLive records the first admission into a scheduled session.
func (c *SessionController) MarkLive(roomID domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, exists := c.states[roomID]; exists && state.status == domain.SessionScheduled {
		state.status = domain.SessionLive
		c.logger.Infow("session live", "room_id", roomID)
	}
}

// Status reports the in-process lifecycle state; ok is false for rooms that
// have never been evaluated against a scheduled session.
func (c *SessionController) Status(roomID domain.RoomID) (domain.SessionStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, exists := c.states[roomID]
	if !exists {
		return "", false
	}
	return state.status, true
}

// Session returns the scheduled session behind roomID, or nil for an ad-hoc room.
func (c *SessionController) Session(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	return c.lookup(ctx, roomID)
}

// AuthorizeEnd checks who may end the call: anyone in an ad-hoc room, only
// the host in a scheduled session.
func (c *SessionController) AuthorizeEnd(ctx context.Context, roomID domain.RoomID, identity domain.Identity) error {
	session, err := c.lookup(ctx, roomID)
	if err != nil {
		return err
	}
	if session != nil && !isHost(session, identity) {
		return domain.ErrUnauthorized
	}
	return nil
}

// End moves a scheduled session to ended and returns the requests that were
// still waiting. Ad-hoc rooms have no lifecycle and return nil.
func (c *SessionController) End(roomID domain.RoomID) []JoinRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, exists := c.states[roomID]
	if !exists {
		return nil
	}

	state.status = domain.SessionEnded
	waiting := make([]JoinRequest, 0, len(state.pending))
	for _, req := range state.pending {
		waiting = append(waiting, req)
	}
	state.pending = make(map[domain.ConnectionID]JoinRequest)
	c.logger.Infow("session ended", "room_id", roomID, "waiting_dropped", len(waiting))
	return waiting
}

func (c *SessionController) lookup(ctx context.Context, roomID domain.RoomID) (*domain.ScheduledSession, error) {
	if c.provider == nil {
		return nil, nil
	}

	session, err := c.provider.GetSession(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		c.logger.Warnw("session lookup failed", "room_id", roomID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}
	return session, nil
}

// stateFor must be called with c.mu held.
func (c *SessionController) stateFor(roomID domain.RoomID, session *domain.ScheduledSession) *sessionState {
	state, exists := c.states[roomID]
	if !exists {
		status := session.Status
		if !status.Valid() {
			status = domain.SessionScheduled
		}
		state = &sessionState{
			status:  status,
			pending: make(map[domain.ConnectionID]JoinRequest),
		}
		c.states[roomID] = state
	}
	if session.Status == domain.SessionEnded {
		state.status = domain.SessionEnded
	}
	return state
}

func isHost(session *domain.ScheduledSession, identity domain.Identity) bool {
	return !identity.IsGuest() && session.IsHost(identity.UserID)
}
