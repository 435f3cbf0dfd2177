package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type routerFixture struct {
	router   *Router
	pub      *recordingPublisher
	registry ports.ConnectionRegistry
	rooms    ports.RoomDirectory
	provider *stubSessionProvider
}

func newRouterFixture(sessions ...*domain.ScheduledSession) *routerFixture {
	f := &routerFixture{
		pub:      &recordingPublisher{},
		registry: memory.NewMemoryConnectionRegistry(),
		rooms:    memory.NewMemoryRoomDirectory(),
		provider: newStubSessionProvider(sessions...),
	}
	controller := NewSessionController(f.provider, testLogger())
	f.router = NewRouter(f.registry, f.rooms, controller, f.pub, nil, testLogger())
	return f
}

func (f *routerFixture) connect(id domain.ConnectionID, user domain.UserID) {
	identity := domain.Identity{UserID: user, UserName: string(user)}
	if user == "" {
		identity = domain.GuestIdentity()
	}
	f.router.Connect(context.Background(), id, identity)
}

func (f *routerFixture) handle(from domain.ConnectionID, typ domain.EnvelopeType, roomID domain.RoomID, target domain.ConnectionID, payload interface{}) {
	env := domain.Envelope{Type: typ, RoomID: roomID, Sender: from, Target: target}
	if payload != nil {
		if raw, ok := payload.(json.RawMessage); ok {
			env.Payload = raw
		} else {
			data, err := json.Marshal(payload)
			if err != nil {
				panic(err)
			}
			env.Payload = data
		}
	}
	f.router.Handle(context.Background(), env)
}

func (f *routerFixture) join(from domain.ConnectionID, roomID domain.RoomID, payload *domain.JoinPayload) {
	if payload == nil {
		f.handle(from, domain.EnvelopeJoin, roomID, "", nil)
		return
	}
	f.handle(from, domain.EnvelopeJoin, roomID, "", payload)
}

func (f *routerFixture) roomOf(t *testing.T, id domain.ConnectionID) domain.RoomID {
	t.Helper()
	conn, ok := f.registry.Get(id)
	require.True(t, ok)
	return conn.RoomID
}

func (f *routerFixture) members(t *testing.T, roomID domain.RoomID) []domain.ConnectionID {
	t.Helper()
	members, err := f.rooms.Members(context.Background(), roomID)
	require.NoError(t, err)
	return memberIDs(members)
}

func (f *routerFixture) roomCount(t *testing.T) int {
	t.Helper()
	n, err := f.rooms.Count(context.Background())
	require.NoError(t, err)
	return n
}

func assertError(t *testing.T, msg *domain.Message, code string) {
	t.Helper()
	require.Equal(t, domain.EventError, msg.Event)
	assert.Equal(t, code, decode[domain.ErrorPayload](t, msg).Code)
}

func TestRouter_ConnectSendsConnectionID(t *testing.T) {
	f := newRouterFixture()
	f.connect("c1", "u1")

	msg := f.pub.last(t, "c1")
	assert.Equal(t, domain.EventConnected, msg.Event)
	payload := decode[domain.ConnectedPayload](t, msg)
	assert.Equal(t, domain.ConnectionID("c1"), payload.ConnectionID)
	assert.Equal(t, domain.UserID("u1"), payload.UserID)
}

func TestRouter_JoinSymmetry(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.connect("c", "carol")

	f.join("a", "r1", &domain.JoinPayload{CallType: domain.CallTypeAudio})
	first := decode[domain.JoinedRoomPayload](t, f.pub.last(t, "a"))
	assert.True(t, first.IsNewRoom)
	assert.Empty(t, first.Participants)
	assert.Equal(t, domain.CallTypeAudio, first.CallType)

	f.join("b", "r1", nil)
	f.join("c", "r1", nil)

	joined := decode[domain.JoinedRoomPayload](t, f.pub.last(t, "c"))
	assert.False(t, joined.IsNewRoom)
	assert.Equal(t, domain.CallTypeAudio, joined.CallType)
	require.Len(t, joined.Participants, 2)
	assert.Equal(t, domain.ConnectionID("a"), joined.Participants[0].ConnectionID)
	assert.Equal(t, domain.ConnectionID("b"), joined.Participants[1].ConnectionID)

	// every existing participant hears about c exactly once
	for _, id := range []domain.ConnectionID{"a", "b"} {
		msg := f.pub.last(t, id)
		require.Equal(t, domain.EventUserJoined, msg.Event)
		assert.Equal(t, domain.ConnectionID("c"), decode[domain.UserJoinedPayload](t, msg).Participant.ConnectionID)
		assert.Equal(t, domain.ConnectionID("c"), msg.From)
	}
	assert.Equal(t, domain.RoomID("r1"), f.roomOf(t, "c"))
}

func TestRouter_RejoinSameRoomDoesNotRebroadcast(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	f.join("b", "r1", nil)

	assert.Equal(t, []string{domain.EventJoinedRoom}, f.pub.events("b"))
	assert.Empty(t, f.pub.events("a"))
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, f.members(t, "r1"))
}

func TestRouter_JoinOtherRoomLeavesFirst(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	f.join("b", "r2", nil)

	assert.Equal(t, []string{domain.EventUserLeft}, f.pub.events("a"))
	assert.Equal(t, []domain.ConnectionID{"a"}, f.members(t, "r1"))
	assert.Equal(t, domain.RoomID("r2"), f.roomOf(t, "b"))
}

func TestRouter_DirectRoomFromPeerUserID(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "bob")
	f.connect("b", "alice")

	f.join("a", "", &domain.JoinPayload{PeerUserID: "alice"})
	f.join("b", "", &domain.JoinPayload{PeerUserID: "bob"})

	assert.Equal(t, domain.RoomID("alice_bob"), f.roomOf(t, "a"))
	assert.Equal(t, domain.RoomID("alice_bob"), f.roomOf(t, "b"))
}

func TestRouter_JoinWithoutRoomIsInvalid(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")

	f.join("a", "", &domain.JoinPayload{})

	assertError(t, f.pub.last(t, "a"), "invalid_envelope")
	assert.Equal(t, 0, f.roomCount(t))
}

func TestRouter_LeaveIdempotence(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	f.handle("b", domain.EnvelopeLeave, "r1", "", nil)
	f.handle("b", domain.EnvelopeLeave, "r1", "", nil)
	f.router.Disconnect(context.Background(), "b")
	f.router.Disconnect(context.Background(), "b")

	assert.Equal(t, []string{domain.EventUserLeft}, f.pub.events("a"))
	assert.Equal(t, domain.ConnectionID("b"), decode[domain.UserLeftPayload](t, f.pub.last(t, "a")).ConnectionID)
	assert.Equal(t, []domain.ConnectionID{"a"}, f.members(t, "r1"))
	assert.Equal(t, 1, f.registry.Count())
}

func TestRouter_RoomDestroyedWhenEmpty(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)

	f.handle("a", domain.EnvelopeLeave, "", "", nil)
	f.router.Disconnect(context.Background(), "b")

	assert.Equal(t, 0, f.roomCount(t))
	_, err := f.router.Snapshot(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	f.connect("c", "carol")
	f.join("c", "r1", nil)
	assert.True(t, decode[domain.JoinedRoomPayload](t, f.pub.last(t, "c")).IsNewRoom)
}

func TestRouter_OfferWithoutTargetNeverForwarded(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	for _, typ := range []domain.EnvelopeType{domain.EnvelopeOffer, domain.EnvelopeAnswer, domain.EnvelopeICECandidate} {
		f.handle("a", typ, "r1", "", json.RawMessage(`{"sdp":"v=0"}`))
		assertError(t, f.pub.last(t, "a"), "invalid_envelope")
	}
	assert.Empty(t, f.pub.messages("b"))
}

func TestRouter_StaleTargetDroppedSilently(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.connect("x", "xavier")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.join("x", "r2", nil)
	f.pub.reset()

	f.handle("a", domain.EnvelopeOffer, "r1", "ghost", json.RawMessage(`{}`))
	f.handle("a", domain.EnvelopeOffer, "r1", "x", json.RawMessage(`{}`))
	f.handle("a", domain.EnvelopeOffer, "r2", "x", json.RawMessage(`{}`))

	assert.Empty(t, f.pub.sent)
}

func TestRouter_NegotiationForwardedVerbatim(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)
	f.handle("a", domain.EnvelopeOffer, "", "b", sdp)

	msg := f.pub.last(t, "b")
	assert.Equal(t, domain.EventOffer, msg.Event)
	assert.Equal(t, domain.ConnectionID("a"), msg.From)
	assert.Equal(t, domain.RoomID("r1"), msg.RoomID)
	assert.JSONEq(t, string(sdp), string(msg.Payload))
	assert.Empty(t, f.pub.messages("a"))
}

func TestRouter_ToggleNotifiesOthers(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	f.handle("b", domain.EnvelopeToggleAudio, "r1", "", domain.TogglePayload{Enabled: false})
	f.handle("b", domain.EnvelopeToggleVideo, "r1", "", domain.TogglePayload{Enabled: false})

	assert.Equal(t, []string{domain.EventAudioToggled, domain.EventVideoToggled}, f.pub.events("a"))
	assert.Empty(t, f.pub.messages("b"))
	payload := decode[domain.MediaToggledPayload](t, f.pub.last(t, "a"))
	assert.Equal(t, domain.ConnectionID("b"), payload.ConnectionID)
	assert.False(t, payload.Enabled)

	conn, _ := f.registry.Get("b")
	assert.False(t, conn.Media.AudioEnabled)
	assert.False(t, conn.Media.VideoEnabled)

	// the next joiner sees b muted
	f.connect("c", "carol")
	f.join("c", "r1", nil)
	joined := decode[domain.JoinedRoomPayload](t, f.pub.last(t, "c"))
	require.Len(t, joined.Participants, 2)
	assert.False(t, joined.Participants[1].Media.AudioEnabled)
}

func TestRouter_ToggleWithoutPayloadIsInvalid(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.join("a", "r1", nil)

	f.handle("a", domain.EnvelopeToggleAudio, "r1", "", nil)
	assertError(t, f.pub.last(t, "a"), "invalid_envelope")
}

func TestRouter_EndToEndScenario(t *testing.T) {
	f := newRouterFixture()
	f.connect("h", "host")
	f.connect("g", "guest-1")

	f.join("h", "r1", nil)
	f.join("g", "r1", nil)

	assert.Equal(t, domain.EventUserJoined, f.pub.last(t, "h").Event)
	joined := decode[domain.JoinedRoomPayload](t, f.pub.last(t, "g"))
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, domain.ConnectionID("h"), joined.Participants[0].ConnectionID)

	// existing participant offers to the newcomer
	f.handle("h", domain.EnvelopeOffer, "r1", "g", json.RawMessage(`{"sdp":"offer"}`))
	assert.Equal(t, domain.EventOffer, f.pub.last(t, "g").Event)
	f.handle("g", domain.EnvelopeAnswer, "r1", "h", json.RawMessage(`{"sdp":"answer"}`))
	assert.Equal(t, domain.EventAnswer, f.pub.last(t, "h").Event)
	f.handle("g", domain.EnvelopeICECandidate, "r1", "h", json.RawMessage(`{"candidate":"c1"}`))
	assert.Equal(t, domain.ConnectionID("g"), f.pub.last(t, "h").From)

	f.handle("h", domain.EnvelopeEndCall, "r1", "", nil)

	assert.Equal(t, domain.EventCallEnded, f.pub.last(t, "h").Event)
	assert.Equal(t, domain.EventCallEnded, f.pub.last(t, "g").Event)
	assert.Equal(t, 0, f.roomCount(t))
	assert.Equal(t, domain.RoomID(""), f.roomOf(t, "h"))
	assert.Equal(t, domain.RoomID(""), f.roomOf(t, "g"))

	// a later disconnect produces nothing further
	f.pub.reset()
	f.router.Disconnect(context.Background(), "g")
	assert.Empty(t, f.pub.sent)
}

func TestRouter_EndCallOutsideRoom(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")

	f.handle("a", domain.EnvelopeEndCall, "r1", "", nil)
	assertError(t, f.pub.last(t, "a"), "not_in_room")
}

func TestRouter_UnknownEnvelopeType(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")

	f.handle("a", domain.EnvelopeType("renegotiate"), "", "", nil)
	assertError(t, f.pub.last(t, "a"), "invalid_envelope")
}

func TestRouter_UnknownSenderIgnored(t *testing.T) {
	f := newRouterFixture()
	f.handle("nobody", domain.EnvelopeJoin, "r1", "", nil)

	assert.Empty(t, f.pub.sent)
	assert.Equal(t, 0, f.roomCount(t))
}

func TestRouter_Stats(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)

	stats := f.router.Stats(context.Background())
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 1, stats.Rooms)
}

func scheduled(id domain.SessionID, host domain.UserID) *domain.ScheduledSession {
	return &domain.ScheduledSession{ID: id, HostID: host, AllowGuests: true, Status: domain.SessionScheduled}
}

func TestRouter_CapacityEnforced(t *testing.T) {
	s := scheduled("s1", "host")
	s.MaxParticipants = 2
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("h", "", &domain.JoinPayload{SessionID: "s1"})
	f.join("a", "", &domain.JoinPayload{SessionID: "s1"})
	f.pub.reset()

	f.join("b", "", &domain.JoinPayload{SessionID: "s1"})

	assertError(t, f.pub.last(t, "b"), "room_full")
	assert.Equal(t, []domain.ConnectionID{"a", "h"}, f.members(t, "s1"))
	assert.Empty(t, f.pub.messages("h"))
	assert.Equal(t, domain.RoomID(""), f.roomOf(t, "b"))

	snap, err := f.router.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MaxParticipants)
}

func TestRouter_HostBypassesCapacity(t *testing.T) {
	s := scheduled("s1", "host")
	s.MaxParticipants = 1
	f := newRouterFixture(s)

	f.connect("a", "alice")
	f.connect("h", "host")
	f.join("a", "s1", nil)
	f.join("h", "s1", nil)

	assert.Equal(t, domain.EventJoinedRoom, f.pub.last(t, "h").Event)
	assert.Len(t, f.members(t, "s1"), 2)
}

func TestRouter_WaitingRoomGating(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("g", "gina")
	f.join("h", "s1", nil)
	assert.Equal(t, domain.EventJoinedRoom, f.pub.last(t, "h").Event)
	f.pub.reset()

	f.join("g", "s1", nil)

	assert.Equal(t, []string{domain.EventWaiting}, f.pub.events("g"))
	request := f.pub.last(t, "h")
	require.Equal(t, domain.EventJoinRequest, request.Event)
	assert.Equal(t, domain.ConnectionID("g"), decode[domain.JoinRequestPayload](t, request).ConnectionID)
	assert.Equal(t, []domain.ConnectionID{"h"}, f.members(t, "s1"))

	snap, err := f.router.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"g"}, snap.Pending)

	f.handle("h", domain.EnvelopeApproveJoin, "s1", "g", nil)

	joined := decode[domain.JoinedRoomPayload](t, f.pub.last(t, "g"))
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, domain.ConnectionID("h"), joined.Participants[0].ConnectionID)
	assert.Equal(t, domain.EventUserJoined, f.pub.last(t, "h").Event)
	assert.Equal(t, domain.RoomID("s1"), f.roomOf(t, "g"))

	f.handle("h", domain.EnvelopeApproveJoin, "s1", "g", nil)
	assertError(t, f.pub.last(t, "h"), "not_pending")
}

func TestRouter_WaitingRoomDeny(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("g", "gina")
	f.join("h", "s1", nil)
	f.join("g", "s1", nil)

	f.handle("h", domain.EnvelopeDenyJoin, "s1", "g", nil)

	assert.Equal(t, domain.EventJoinDenied, f.pub.last(t, "g").Event)
	assert.Equal(t, []domain.ConnectionID{"h"}, f.members(t, "s1"))
}

func TestRouter_OnlyHostMayApprove(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("a", "alice")
	f.connect("g", "gina")
	f.join("h", "s1", nil)
	f.join("a", "s1", nil)
	f.handle("h", domain.EnvelopeApproveJoin, "s1", "a", nil)
	f.join("g", "s1", nil)

	f.handle("a", domain.EnvelopeApproveJoin, "s1", "g", nil)

	assertError(t, f.pub.last(t, "a"), "unauthorized")
	assert.Equal(t, domain.EventWaiting, f.pub.last(t, "g").Event)
}

func TestRouter_HostJoiningLaterSeesPendingRequests(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("g", "gina")
	f.connect("h", "host")
	f.join("g", "s1", nil)
	f.join("h", "s1", nil)

	assert.Equal(t, []string{domain.EventConnected, domain.EventJoinedRoom, domain.EventJoinRequest}, f.pub.events("h"))
}

func TestRouter_DisconnectWhileWaitingCancelsRequest(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("g", "gina")
	f.join("h", "s1", nil)
	f.join("g", "s1", nil)
	f.pub.reset()

	f.router.Disconnect(context.Background(), "g")

	msg := f.pub.last(t, "h")
	assert.Equal(t, domain.EventJoinCancelled, msg.Event)
	assert.Equal(t, domain.ConnectionID("g"), decode[domain.JoinRequestPayload](t, msg).ConnectionID)

	snap, err := f.router.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Pending)
}

func TestRouter_HostLeavingEndsSession(t *testing.T) {
	f := newRouterFixture(scheduled("s1", "host"))

	f.connect("h", "host")
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("h", "s1", nil)
	f.join("a", "s1", nil)
	f.join("b", "s1", nil)
	f.pub.reset()

	f.handle("h", domain.EnvelopeLeave, "s1", "", nil)

	for _, id := range []domain.ConnectionID{"a", "b"} {
		msg := f.pub.last(t, id)
		assert.Equal(t, domain.EventCallEnded, msg.Event)
		assert.Equal(t, "host_left", decode[domain.CallEndedPayload](t, msg).Reason)
		assert.Equal(t, domain.RoomID(""), f.roomOf(t, id))
	}
	assert.Equal(t, 0, f.roomCount(t))

	f.join("a", "s1", nil)
	assertError(t, f.pub.last(t, "a"), "session_ended")
}

func TestRouter_HostSecondDeviceKeepsSessionAlive(t *testing.T) {
	f := newRouterFixture(scheduled("s1", "host"))

	f.connect("h1", "host")
	f.connect("h2", "host")
	f.connect("a", "alice")
	f.join("h1", "s1", nil)
	f.join("h2", "s1", nil)
	f.join("a", "s1", nil)
	f.pub.reset()

	f.router.Disconnect(context.Background(), "h1")

	assert.Equal(t, []string{domain.EventUserLeft}, f.pub.events("a"))
	assert.Len(t, f.members(t, "s1"), 2)
}

func TestRouter_EndedSessionDeniesWaiters(t *testing.T) {
	s := scheduled("s1", "host")
	s.WaitingRoomEnabled = true
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("g", "gina")
	f.join("h", "s1", nil)
	f.join("g", "s1", nil)

	f.handle("h", domain.EnvelopeEndCall, "s1", "", nil)

	msg := f.pub.last(t, "g")
	assert.Equal(t, domain.EventJoinDenied, msg.Event)
	assert.Equal(t, "session_ended", decode[domain.ErrorPayload](t, msg).Code)
}

func TestRouter_OnlyHostMayEndScheduledSession(t *testing.T) {
	f := newRouterFixture(scheduled("s1", "host"))

	f.connect("h", "host")
	f.connect("a", "alice")
	f.join("h", "s1", nil)
	f.join("a", "s1", nil)

	f.handle("a", domain.EnvelopeEndCall, "s1", "", nil)

	assertError(t, f.pub.last(t, "a"), "unauthorized")
	assert.Len(t, f.members(t, "s1"), 2)
}

func TestRouter_PasswordProtectedSession(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)

	s := scheduled("s1", "host")
	s.RequiresPassword = true
	s.PasswordHash = string(hash)
	f := newRouterFixture(s)

	f.connect("a", "alice")
	f.connect("b", "bob")
	f.connect("h", "host")

	f.join("a", "s1", &domain.JoinPayload{Password: "wrong"})
	assertError(t, f.pub.last(t, "a"), "unauthorized")

	f.join("b", "s1", &domain.JoinPayload{Password: "letmein"})
	assert.Equal(t, domain.EventJoinedRoom, f.pub.last(t, "b").Event)

	f.join("h", "s1", nil)
	assert.Equal(t, domain.EventJoinedRoom, f.pub.last(t, "h").Event)
}

func TestRouter_GuestsRejectedWhenDisallowed(t *testing.T) {
	s := scheduled("s1", "host")
	s.AllowGuests = false
	f := newRouterFixture(s)

	f.connect("g", "")
	f.join("g", "s1", nil)

	assertError(t, f.pub.last(t, "g"), "unauthorized")
}

func TestRouter_ProviderFailureRejectsAsUnavailable(t *testing.T) {
	f := newRouterFixture()
	f.provider.err = errors.New("redis: connection refused")

	f.connect("a", "alice")
	f.join("a", "s1", nil)

	assertError(t, f.pub.last(t, "a"), "unavailable")
	assert.Equal(t, 0, f.roomCount(t))
}

func TestRouter_RejectedJoinKeepsCurrentRoom(t *testing.T) {
	s := scheduled("s1", "host")
	s.MaxParticipants = 1
	f := newRouterFixture(s)

	f.connect("h", "host")
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("h", "s1", nil)
	f.join("a", "adhoc", nil)
	f.join("b", "adhoc", nil)
	f.pub.reset()

	f.join("a", "s1", nil)

	assertError(t, f.pub.last(t, "a"), "room_full")
	assert.Empty(t, f.pub.messages("b"), "no user-left for a rejected move")
	assert.Equal(t, domain.RoomID("adhoc"), f.roomOf(t, "a"))
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, f.members(t, "adhoc"))
	assert.Equal(t, []domain.ConnectionID{"h"}, f.members(t, "s1"))
}

func TestRouter_RejectedJoinKeepsWaitingRequest(t *testing.T) {
	waiting := scheduled("s1", "host")
	waiting.WaitingRoomEnabled = true
	closed := scheduled("s2", "other")
	closed.AllowGuests = false
	f := newRouterFixture(waiting, closed)

	f.connect("h", "host")
	f.connect("g", "")
	f.join("h", "s1", nil)
	f.join("g", "s1", nil)
	f.pub.reset()

	f.join("g", "s2", nil)

	assertError(t, f.pub.last(t, "g"), "unauthorized")
	assert.Empty(t, f.pub.messages("h"), "hosts are not told of a cancellation")
	snap, err := f.router.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"g"}, snap.Pending)
}

func TestRouter_NegotiationWithoutPayloadIsInvalid(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.join("a", "r1", nil)
	f.join("b", "r1", nil)
	f.pub.reset()

	for _, typ := range []domain.EnvelopeType{domain.EnvelopeOffer, domain.EnvelopeAnswer, domain.EnvelopeICECandidate} {
		f.handle("a", typ, "r1", "b", nil)
		assertError(t, f.pub.last(t, "a"), "invalid_envelope")
		f.handle("a", typ, "r1", "b", json.RawMessage(`null`))
		assertError(t, f.pub.last(t, "a"), "invalid_envelope")
	}
	assert.Empty(t, f.pub.messages("b"))
}

func TestRouter_DirectRoomRejectsAmbiguousUserIDs(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "a_b")

	f.join("a", "", &domain.JoinPayload{PeerUserID: "c"})

	assertError(t, f.pub.last(t, "a"), "invalid_envelope")
	assert.Equal(t, 0, f.roomCount(t))
}

func TestRouter_AdHocCapacity(t *testing.T) {
	f := newRouterFixture()
	f.connect("a", "alice")
	f.connect("b", "bob")
	f.connect("c", "carol")

	f.join("a", "r1", &domain.JoinPayload{MaxParticipants: 2})
	f.join("b", "r1", nil)
	f.pub.reset()

	f.join("c", "r1", nil)

	assertError(t, f.pub.last(t, "c"), "room_full")
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, f.members(t, "r1"))
	assert.Empty(t, f.pub.messages("a"))

	// a member re-joining its own full room is still answered
	f.join("b", "r1", nil)
	assert.Equal(t, domain.EventJoinedRoom, f.pub.last(t, "b").Event)

	f.join("c", "r2", &domain.JoinPayload{MaxParticipants: -1})
	assertError(t, f.pub.last(t, "c"), "invalid_envelope")
}

func TestRouter_SnapshotReportsSessionStatus(t *testing.T) {
	f := newRouterFixture(scheduled("s1", "host"))
	f.connect("h", "host")
	f.connect("a", "alice")
	f.join("h", "s1", nil)
	f.join("a", "adhoc", nil)

	snap, err := f.router.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionLive, snap.SessionStatus)

	snap, err = f.router.Snapshot(context.Background(), "adhoc")
	require.NoError(t, err)
	assert.Empty(t, snap.SessionStatus)
}

func TestRouter_RejoinReportsSessionLookupFailure(t *testing.T) {
	f := newRouterFixture(scheduled("s1", "host"))
	f.connect("h", "host")
	f.join("h", "s1", nil)

	f.provider.err = errors.New("redis: connection refused")
	f.join("h", "s1", nil)

	assertError(t, f.pub.last(t, "h"), "unavailable")
	assert.Equal(t, domain.RoomID("s1"), f.roomOf(t, "h"))
}
