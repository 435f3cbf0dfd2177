package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	apperrors "callhub/pkg/errors"
	"callhub/pkg/tracing"
	"callhub/pkg/validation"

	"go.uber.org/zap"
)

const (
	outcomeOK           = "ok"
	reasonHostLeft      = "host_left"
	reasonEndedByMember = "ended_by_participant"
)

var forwardEvents = map[domain.EnvelopeType]string{
	domain.EnvelopeOffer:        domain.EventOffer,
	domain.EnvelopeAnswer:       domain.EventAnswer,
	domain.EnvelopeICECandidate: domain.EventICECandidate,
}

// Router validates inbound envelopes against registry and directory state and
// forwards them through the publisher. Every envelope, connect and disconnect
// is handled to completion under one lock, so the publisher must never block
// or call back into the router.
type Router struct {
	registry  ports.ConnectionRegistry
	rooms     ports.RoomDirectory
	sessions  *SessionController
	publisher ports.Publisher
	metrics   ports.SignalingMetrics
	logger    *zap.SugaredLogger

	mu sync.Mutex
}

func NewRouter(
	registry ports.ConnectionRegistry,
	rooms ports.RoomDirectory,
	sessions *SessionController,
	publisher ports.Publisher,
	metrics ports.SignalingMetrics,
	logger *zap.SugaredLogger,
) *Router {
	if metrics == nil {
		metrics = ports.NoopMetrics()
	}
	return &Router{
		registry:  registry,
		rooms:     rooms,
		sessions:  sessions,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

var (
	_ ports.SignalHandler  = (*Router)(nil)
	_ ports.RemoteObserver = (*Router)(nil)
)

func (r *Router) Connect(ctx context.Context, id domain.ConnectionID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registry.Register(id, identity)
	r.metrics.ConnectionOpened()
	r.logger.Infow("connection registered", "connection_id", id, "user_id", identity.UserID, "guest", identity.IsGuest())

	r.send(ctx, id, domain.NewMessage(domain.EventConnected, "", "", domain.ConnectedPayload{
		ConnectionID: id,
		UserID:       identity.UserID,
	}))
}

// Disconnect is the single cleanup path for a closed transport. A connection
// that already left its room explicitly produces no second user-left.
func (r *Router) Disconnect(ctx context.Context, id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.registry.Get(id)
	if !ok {
		return
	}
	roomID := r.registry.Unregister(id)
	r.metrics.ConnectionClosed()

	r.cancelPending(ctx, conn, "")
	if roomID != "" {
		r.leaveRoom(ctx, conn, roomID)
	}
	r.logger.Infow("connection closed", "connection_id", id, "room_id", roomID)
}

func (r *Router) Handle(ctx context.Context, env domain.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := tracing.TraceEnvelope(ctx, string(env.Type), string(env.Sender), string(env.RoomID))
	defer span.End()
	start := time.Now()

	conn, ok := r.registry.Get(env.Sender)
	if !ok {
		r.logger.Warnw("envelope from unknown connection", "connection_id", env.Sender, "type", env.Type)
		return
	}

	outcome := outcomeOK
	if err := r.dispatch(ctx, conn, env); err != nil {
		outcome = r.reject(ctx, conn, env, err)
	}

	tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String(outcome))
	tracing.MeasureDuration(ctx, start, string(env.Type))
	r.metrics.EnvelopeHandled(env.Type, outcome)
}

func (r *Router) dispatch(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	switch env.Type {
	case domain.EnvelopeJoin:
		return r.handleJoin(ctx, conn, env)
	case domain.EnvelopeLeave:
		return r.handleLeave(ctx, conn)
	case domain.EnvelopeOffer, domain.EnvelopeAnswer, domain.EnvelopeICECandidate:
		return r.handleNegotiation(ctx, conn, env)
	case domain.EnvelopeToggleAudio, domain.EnvelopeToggleVideo:
		return r.handleToggle(ctx, conn, env)
	case domain.EnvelopeEndCall:
		return r.handleEndCall(ctx, conn, env)
	case domain.EnvelopeApproveJoin:
		return r.handleApprove(ctx, conn, env)
	case domain.EnvelopeDenyJoin:
		return r.handleDeny(ctx, conn, env)
	default:
		return domain.ErrInvalidEnvelope
	}
}

// reject reports err to the sender and returns the outcome label. Stale
// targets are dropped without a reply.
func (r *Router) reject(ctx context.Context, conn domain.Connection, env domain.Envelope, err error) string {
	appErr := ToAppError(err)
	tracing.RecordError(ctx, err)

	if appErr.Code == apperrors.CodeStaleTarget {
		r.logger.Debugw("stale target dropped", "connection_id", conn.ID, "target", env.Target, "type", env.Type)
		return string(appErr.Code)
	}

	r.logger.Warnw("envelope rejected",
		"connection_id", conn.ID,
		"room_id", env.RoomID,
		"type", env.Type,
		"code", appErr.Code,
		"error", err,
	)
	r.sendError(ctx, conn.ID, env.RoomID, appErr)
	return string(appErr.Code)
}

func (r *Router) handleJoin(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	var payload domain.JoinPayload
	if err := decodePayload(env.Payload, &payload); err != nil {
		return err
	}

	roomID := resolveRoomID(conn.Identity, env.RoomID, payload)
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return domain.ErrInvalidEnvelope
	}
	if err := validation.ValidateMaxParticipants(payload.MaxParticipants); err != nil {
		return domain.ErrInvalidEnvelope
	}

	opts := domain.RoomOptions{CallType: payload.CallType, MaxParticipants: payload.MaxParticipants}

	if conn.RoomID == roomID {
		// Re-join of the current room: answer again, tell nobody else.
		session, err := r.sessions.Session(ctx, roomID)
		if err != nil {
			return err
		}
		return r.admit(ctx, conn.ID, conn.Identity, roomID, opts, session)
	}

	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		return err
	}

	req := JoinRequest{
		RoomID:       roomID,
		ConnectionID: conn.ID,
		Identity:     conn.Identity,
		Password:     payload.Password,
		Options:      opts,
	}
	admission := r.sessions.RequestJoin(ctx, req, len(members))
	if admission.Decision == AdmissionAdmit && admission.Session == nil {
		if err := r.checkCapacity(ctx, roomID, len(members)); err != nil {
			admission = Admission{Decision: AdmissionReject, Reason: err}
		}
	}
	r.metrics.Admission(string(admission.Decision))

	// A rejected join leaves the caller where it was.
	if admission.Decision == AdmissionReject {
		return admission.Reason
	}
	r.leaveCurrent(ctx, conn, roomID)

	if admission.Decision == AdmissionWait {
		r.logger.Infow("join queued in waiting room", "connection_id", conn.ID, "room_id", roomID)
		r.send(ctx, conn.ID, domain.NewMessage(domain.EventWaiting, roomID, "", nil))
		if hosts := r.hostConnections(ctx, roomID, admission.Session); len(hosts) > 0 {
			r.publish(ctx, roomID, hosts, domain.NewMessage(domain.EventJoinRequest, roomID, "", joinRequestPayload(req)))
		}
		return nil
	}
	return r.admit(ctx, conn.ID, conn.Identity, roomID, opts, admission.Session)
}

// checkCapacity enforces the limit an ad-hoc room was created with.
func (r *Router) checkCapacity(ctx context.Context, roomID domain.RoomID, participants int) error {
	room, err := r.rooms.Get(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if room.MaxParticipants > 0 && participants >= room.MaxParticipants {
		return domain.ErrRoomFull
	}
	return nil
}

// leaveCurrent releases whatever conn held before moving to roomID: its room
// and any waiting-room request for another room.
func (r *Router) leaveCurrent(ctx context.Context, conn domain.Connection, roomID domain.RoomID) {
	r.cancelPending(ctx, conn, roomID)
	if conn.RoomID != "" {
		r.registry.SetRoom(conn.ID, "")
		r.leaveRoom(ctx, conn, conn.RoomID)
	}
}

// admit places id in the room and delivers the symmetric pair of notices:
// joined-room to the joiner and user-joined to everyone already present.
func (r *Router) admit(ctx context.Context, id domain.ConnectionID, identity domain.Identity, roomID domain.RoomID, opts domain.RoomOptions, session *domain.ScheduledSession) error {
	if session != nil {
		opts.MaxParticipants = session.MaxParticipants
	}

	member := domain.ParticipantInfo{ConnectionID: id, UserID: identity.UserID, UserName: identity.UserName}
	if conn, ok := r.registry.Get(id); ok {
		member.Media = conn.Media
	}

	result, err := r.rooms.Join(ctx, roomID, member, opts)
	if err != nil {
		return err
	}
	r.registry.SetRoom(id, roomID)
	if result.IsNewRoom {
		r.metrics.RoomCreated()
	}
	if session != nil {
		r.sessions.MarkLive(roomID)
	}

	callType := opts.CallType
	if room, err := r.rooms.Get(ctx, roomID); err == nil {
		callType = room.CallType
	} else {
		r.logger.Warnw("room lookup after join failed", "room_id", roomID, "error", err)
	}

	r.send(ctx, id, domain.NewMessage(domain.EventJoinedRoom, roomID, "", domain.JoinedRoomPayload{
		Participants: result.ExistingParticipants,
		CallType:     callType,
		IsNewRoom:    result.IsNewRoom,
	}))

	if !result.AlreadyJoined && len(result.ExistingParticipants) > 0 {
		r.publish(ctx, roomID, memberIDs(result.ExistingParticipants),
			domain.NewMessage(domain.EventUserJoined, roomID, id, domain.UserJoinedPayload{Participant: member}))
	}

	if session != nil && isHost(session, identity) {
		for _, req := range r.sessions.Pending(roomID) {
			r.send(ctx, id, domain.NewMessage(domain.EventJoinRequest, roomID, "", joinRequestPayload(req)))
		}
	}

	r.logger.Infow("joined room",
		"connection_id", id,
		"room_id", roomID,
		"is_new_room", result.IsNewRoom,
		"already_joined", result.AlreadyJoined,
		"participants", len(result.ExistingParticipants)+1,
	)
	return nil
}

func (r *Router) handleLeave(ctx context.Context, conn domain.Connection) error {
	r.cancelPending(ctx, conn, "")
	if conn.RoomID == "" {
		return nil
	}
	r.registry.SetRoom(conn.ID, "")
	r.leaveRoom(ctx, conn, conn.RoomID)
	return nil
}

// leaveRoom removes conn from roomID and notifies whoever remains. The caller
// has already cleared the registry pointer.
func (r *Router) leaveRoom(ctx context.Context, conn domain.Connection, roomID domain.RoomID) {
	result, err := r.rooms.Leave(ctx, roomID, conn.ID)
	if err != nil {
		r.logger.Errorw("failed to leave room", "connection_id", conn.ID, "room_id", roomID, "error", err)
		return
	}
	if !result.Removed {
		return
	}

	session, err := r.sessions.Session(ctx, roomID)
	if err != nil {
		r.logger.Warnw("session lookup on leave failed", "room_id", roomID, "error", err)
	}
	hostGone := session != nil && isHost(session, conn.Identity) && !userPresent(result.RemainingParticipants, conn.Identity.UserID)

	if result.RoomDestroyed {
		r.metrics.RoomDestroyed()
		r.logger.Infow("room destroyed", "room_id", roomID, "connection_id", conn.ID)
		if hostGone {
			r.endSession(ctx, roomID)
		}
		return
	}

	if hostGone {
		r.logger.Infow("host left, ending session", "room_id", roomID, "connection_id", conn.ID)
		r.endRoom(ctx, roomID, reasonHostLeft)
		return
	}

	r.publish(ctx, roomID, memberIDs(result.RemainingParticipants),
		domain.NewMessage(domain.EventUserLeft, roomID, conn.ID, domain.UserLeftPayload{ConnectionID: conn.ID}))
	r.logger.Infow("left room", "connection_id", conn.ID, "room_id", roomID, "remaining", len(result.RemainingParticipants))
}

func (r *Router) handleNegotiation(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	if env.Target == "" || env.Target == conn.ID || emptyPayload(env.Payload) {
		return domain.ErrInvalidEnvelope
	}

	roomID := env.RoomID
	if roomID == "" {
		roomID = conn.RoomID
	}
	if roomID == "" || conn.RoomID != roomID {
		return domain.ErrStaleTarget
	}
	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		return err
	}
	if !hasMember(members, conn.ID) || !hasMember(members, env.Target) {
		return domain.ErrStaleTarget
	}

	tracing.AddSpanAttributes(ctx, tracing.TargetIDKey.String(string(env.Target)))
	r.send(ctx, env.Target, domain.NewMessage(forwardEvents[env.Type], roomID, conn.ID, env.Payload))
	return nil
}

func (r *Router) handleToggle(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	var payload domain.TogglePayload
	if emptyPayload(env.Payload) {
		return domain.ErrInvalidEnvelope
	}
	if err := decodePayload(env.Payload, &payload); err != nil {
		return err
	}

	enabled := payload.Enabled
	update := domain.MediaUpdate{}
	event := domain.EventAudioToggled
	if env.Type == domain.EnvelopeToggleAudio {
		update.Audio = &enabled
	} else {
		update.Video = &enabled
		event = domain.EventVideoToggled
	}
	r.registry.SetMediaState(conn.ID, update)

	// Toggling before joining only updates local state.
	if conn.RoomID == "" {
		return nil
	}

	if err := r.rooms.SetMedia(ctx, conn.RoomID, conn.ID, conn.Media.Apply(update)); err != nil {
		r.logger.Warnw("failed to record media state", "connection_id", conn.ID, "room_id", conn.RoomID, "error", err)
	}
	members, err := r.rooms.Members(ctx, conn.RoomID)
	if err != nil {
		return err
	}
	others := without(memberIDs(members), conn.ID)
	if len(others) > 0 {
		r.publish(ctx, conn.RoomID, others, domain.NewMessage(event, conn.RoomID, conn.ID, domain.MediaToggledPayload{
			ConnectionID: conn.ID,
			Enabled:      enabled,
		}))
	}
	return nil
}

func (r *Router) handleEndCall(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	if conn.RoomID == "" || (env.RoomID != "" && env.RoomID != conn.RoomID) {
		return domain.ErrNotInRoom
	}
	if err := r.sessions.AuthorizeEnd(ctx, conn.RoomID, conn.Identity); err != nil {
		return err
	}

	r.logger.Infow("call ended", "room_id", conn.RoomID, "connection_id", conn.ID)
	r.endRoom(ctx, conn.RoomID, reasonEndedByMember)
	return nil
}

// endRoom tells every participant the call is over, releases their room
// pointers and destroys the room. A scheduled session moves to ended.
func (r *Router) endRoom(ctx context.Context, roomID domain.RoomID, reason string) {
	members, err := r.rooms.Destroy(ctx, roomID)
	if err != nil {
		r.logger.Errorw("failed to destroy room", "room_id", roomID, "error", err)
	}
	ids := memberIDs(members)
	for _, id := range ids {
		// pointers of connections held by other instances are released there
		r.registry.SetRoom(id, "")
	}
	if len(ids) > 0 {
		r.metrics.RoomDestroyed()
		r.publish(ctx, roomID, ids, domain.NewMessage(domain.EventCallEnded, roomID, "", domain.CallEndedPayload{Reason: reason}))
	}
	r.endSession(ctx, roomID)
}

func (r *Router) endSession(ctx context.Context, roomID domain.RoomID) {
	for _, req := range r.sessions.End(roomID) {
		r.send(ctx, req.ConnectionID, domain.NewMessage(domain.EventJoinDenied, roomID, "", domain.ErrorPayload{
			Code:    string(apperrors.CodeSessionEnded),
			Message: "session has ended",
		}))
	}
}

// ObserveRemote keeps local state in step with a call-ended notice that
// another instance sent to connections held here.
func (r *Router) ObserveRemote(ctx context.Context, recipients []domain.ConnectionID, msg *domain.Message) {
	if msg.Event != domain.EventCallEnded {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range recipients {
		if conn, ok := r.registry.Get(id); ok && conn.RoomID == msg.RoomID {
			r.registry.SetRoom(id, "")
		}
	}
	r.endSession(ctx, msg.RoomID)
	r.logger.Debugw("remote call end applied", "room_id", msg.RoomID, "recipients", len(recipients))
}

func (r *Router) handleApprove(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	if env.Target == "" {
		return domain.ErrInvalidEnvelope
	}
	if conn.RoomID == "" {
		return domain.ErrNotInRoom
	}

	roomID := conn.RoomID
	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		return err
	}
	req, session, err := r.sessions.Approve(ctx, roomID, conn.Identity, env.Target, len(members))
	if errors.Is(err, domain.ErrRoomFull) {
		r.send(ctx, env.Target, domain.NewMessage(domain.EventJoinDenied, roomID, "", domain.ErrorPayload{
			Code:    string(apperrors.CodeRoomFull),
			Message: "room is full",
		}))
		return err
	}
	if err != nil {
		return err
	}

	waiting, ok := r.registry.Get(env.Target)
	if !ok {
		return domain.ErrStaleTarget
	}

	r.metrics.Admission(string(AdmissionAdmit))
	r.logger.Infow("join approved", "room_id", roomID, "host_connection_id", conn.ID, "connection_id", env.Target)
	return r.admit(ctx, waiting.ID, waiting.Identity, roomID, req.Options, session)
}

func (r *Router) handleDeny(ctx context.Context, conn domain.Connection, env domain.Envelope) error {
	if env.Target == "" {
		return domain.ErrInvalidEnvelope
	}
	if conn.RoomID == "" {
		return domain.ErrNotInRoom
	}

	if _, err := r.sessions.Deny(ctx, conn.RoomID, conn.Identity, env.Target); err != nil {
		return err
	}

	r.logger.Infow("join denied", "room_id", conn.RoomID, "connection_id", env.Target)
	r.send(ctx, env.Target, domain.NewMessage(domain.EventJoinDenied, conn.RoomID, "", domain.ErrorPayload{
		Code:    string(apperrors.CodeUnauthorized),
		Message: "the host declined the request",
	}))
	return nil
}

// cancelPending withdraws the waiting-room requests made by conn, except one
// for keep, and tells the hosts that are present.
func (r *Router) cancelPending(ctx context.Context, conn domain.Connection, keep domain.RoomID) {
	for _, req := range r.sessions.CancelPending(conn.ID, keep) {
		session, err := r.sessions.Session(ctx, req.RoomID)
		if err != nil {
			r.logger.Warnw("session lookup on cancel failed", "room_id", req.RoomID, "error", err)
			continue
		}
		hosts := r.hostConnections(ctx, req.RoomID, session)
		if len(hosts) == 0 {
			continue
		}
		r.publish(ctx, req.RoomID, hosts, domain.NewMessage(domain.EventJoinCancelled, req.RoomID, "", joinRequestPayload(req)))
	}
}

// Snapshot returns a read-only view of roomID for the inspection endpoint.
func (r *Router) Snapshot(ctx context.Context, roomID domain.RoomID) (domain.RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	snapshot := domain.RoomSnapshot{
		RoomID:          room.ID,
		CallType:        room.CallType,
		Participants:    make([]domain.ConnectionID, 0, len(room.Participants)),
		MaxParticipants: room.MaxParticipants,
		CreatedAt:       room.CreatedAt,
	}
	for id := range room.Participants {
		snapshot.Participants = append(snapshot.Participants, id)
	}
	sort.Slice(snapshot.Participants, func(i, j int) bool { return snapshot.Participants[i] < snapshot.Participants[j] })

	if status, ok := r.sessions.Status(roomID); ok {
		snapshot.SessionStatus = status
	} else if session, err := r.sessions.Session(ctx, roomID); err == nil && session != nil {
		snapshot.SessionStatus = session.Status
	}
	for _, req := range r.sessions.Pending(roomID) {
		snapshot.Pending = append(snapshot.Pending, req.ConnectionID)
	}
	return snapshot, nil
}

// Stats counts the connections held here and the rooms the directory knows,
// which spans every instance when the directory is shared.
func (r *Router) Stats(ctx context.Context) domain.HubStats {
	stats := domain.HubStats{
		Connections: r.registry.Count(),
		Timestamp:   time.Now(),
	}
	rooms, err := r.rooms.Count(ctx)
	if err != nil {
		r.logger.Warnw("room count failed", "error", err)
	}
	stats.Rooms = rooms
	return stats
}

func (r *Router) send(ctx context.Context, to domain.ConnectionID, msg *domain.Message) {
	if err := r.publisher.Send(ctx, to, msg); err != nil {
		r.logger.Warnw("send failed", "connection_id", to, "event", msg.Event, "error", err)
	}
}

func (r *Router) publish(ctx context.Context, roomID domain.RoomID, recipients []domain.ConnectionID, msg *domain.Message) {
	if err := r.publisher.PublishToRoom(ctx, roomID, recipients, msg); err != nil {
		r.logger.Warnw("publish failed", "room_id", roomID, "event", msg.Event, "recipients", len(recipients), "error", err)
	}
}

func (r *Router) sendError(ctx context.Context, to domain.ConnectionID, roomID domain.RoomID, appErr *apperrors.AppError) {
	r.send(ctx, to, domain.NewMessage(domain.EventError, roomID, "", domain.ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}))
}

func (r *Router) hostConnections(ctx context.Context, roomID domain.RoomID, session *domain.ScheduledSession) []domain.ConnectionID {
	if session == nil {
		return nil
	}
	members, err := r.rooms.Members(ctx, roomID)
	if err != nil {
		r.logger.Warnw("member lookup failed", "room_id", roomID, "error", err)
		return nil
	}
	var hosts []domain.ConnectionID
	for _, m := range members {
		if isHost(session, domain.Identity{UserID: m.UserID}) {
			hosts = append(hosts, m.ConnectionID)
		}
	}
	return hosts
}

func userPresent(members []domain.ParticipantInfo, userID domain.UserID) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func hasMember(members []domain.ParticipantInfo, id domain.ConnectionID) bool {
	for _, m := range members {
		if m.ConnectionID == id {
			return true
		}
	}
	return false
}

func memberIDs(members []domain.ParticipantInfo) []domain.ConnectionID {
	ids := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ConnectionID)
	}
	return ids
}

// resolveRoomID picks the room from the explicit id, then the scheduled
// session, then the 1:1 peer. A direct room id is derived only from exactly
// two known users.
func resolveRoomID(identity domain.Identity, explicit domain.RoomID, payload domain.JoinPayload) domain.RoomID {
	switch {
	case explicit != "":
		return explicit
	case payload.SessionID != "":
		return domain.SessionRoomID(payload.SessionID)
	case payload.PeerUserID != "" && !identity.IsGuest():
		roomID, _ := domain.DirectRoomID(identity.UserID, payload.PeerUserID)
		return roomID
	default:
		return ""
	}
}

func emptyPayload(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if emptyPayload(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrInvalidEnvelope
	}
	return nil
}

func joinRequestPayload(req JoinRequest) domain.JoinRequestPayload {
	return domain.JoinRequestPayload{
		ConnectionID: req.ConnectionID,
		UserID:       req.Identity.UserID,
		UserName:     req.Identity.UserName,
	}
}

func without(ids []domain.ConnectionID, exclude domain.ConnectionID) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
