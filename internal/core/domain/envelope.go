package domain

import "encoding/json"

type EnvelopeType string

const (
	EnvelopeJoin         EnvelopeType = "join"
	EnvelopeLeave        EnvelopeType = "leave"
	EnvelopeOffer        EnvelopeType = "offer"
	EnvelopeAnswer       EnvelopeType = "answer"
	EnvelopeICECandidate EnvelopeType = "ice-candidate"
	EnvelopeToggleAudio  EnvelopeType = "toggle-audio"
	EnvelopeToggleVideo  EnvelopeType = "toggle-video"
	EnvelopeEndCall      EnvelopeType = "end-call"
	EnvelopeApproveJoin  EnvelopeType = "approve-join"
	EnvelopeDenyJoin     EnvelopeType = "deny-join"
)

// Client to server events.
const (
	EventJoinRoom     = "webrtc:join-room"
	EventLeaveRoom    = "webrtc:leave-room"
	EventOffer        = "webrtc:offer"
	EventAnswer       = "webrtc:answer"
	EventICECandidate = "webrtc:ice-candidate"
	EventToggleAudio  = "webrtc:toggle-audio"
	EventToggleVideo  = "webrtc:toggle-video"
	EventEndCall      = "webrtc:end-call"
	EventApproveJoin  = "webrtc:approve-join"
	EventDenyJoin     = "webrtc:deny-join"
)

// Server to client events.
const (
	EventConnected     = "webrtc:connected"
	EventJoinedRoom    = "webrtc:joined-room"
	EventUserJoined    = "webrtc:user-joined"
	EventUserLeft      = "webrtc:user-left"
	EventAudioToggled  = "webrtc:audio-toggled"
	EventVideoToggled  = "webrtc:video-toggled"
	EventWaiting       = "webrtc:waiting"
	EventJoinRequest   = "webrtc:join-request"
	EventJoinDenied    = "webrtc:join-denied"
	EventJoinCancelled = "webrtc:join-cancelled"
	EventCallEnded     = "webrtc:call-ended"
	EventError         = "webrtc:error"
)

var inboundEvents = map[string]EnvelopeType{
	EventJoinRoom:     EnvelopeJoin,
	EventLeaveRoom:    EnvelopeLeave,
	EventOffer:        EnvelopeOffer,
	EventAnswer:       EnvelopeAnswer,
	EventICECandidate: EnvelopeICECandidate,
	EventToggleAudio:  EnvelopeToggleAudio,
	EventToggleVideo:  EnvelopeToggleVideo,
	EventEndCall:      EnvelopeEndCall,
	EventApproveJoin:  EnvelopeApproveJoin,
	EventDenyJoin:     EnvelopeDenyJoin,
}

// EnvelopeTypeForEvent maps an inbound event name onto its envelope type.
func EnvelopeTypeForEvent(event string) (EnvelopeType, bool) {
	t, ok := inboundEvents[event]
	return t, ok
}

// Envelope is one inbound signaling message. Sender is always filled in by
// the transport, never trusted from the wire.
type Envelope struct {
	Type    EnvelopeType
	RoomID  RoomID
	Sender  ConnectionID
	Target  ConnectionID
	Payload json.RawMessage
}

// RequiresTarget reports whether the envelope carries a session description
// or candidate that must only ever reach a single peer.
func (e Envelope) RequiresTarget() bool {
	switch e.Type {
	case EnvelopeOffer, EnvelopeAnswer, EnvelopeICECandidate, EnvelopeApproveJoin, EnvelopeDenyJoin:
		return true
	}
	return false
}

// Message is one outbound frame.
type Message struct {
	Event   string          `json:"event"`
	RoomID  RoomID          `json:"room_id,omitempty"`
	From    ConnectionID    `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an outbound message. Payloads are the plain structs
// below; a payload that fails to encode is dropped from the frame.
func NewMessage(event string, roomID RoomID, from ConnectionID, payload interface{}) *Message {
	msg := &Message{Event: event, RoomID: roomID, From: from}
	if payload == nil {
		return msg
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg
	}
	if data, err := json.Marshal(payload); err == nil {
		msg.Payload = data
	}
	return msg
}

type JoinPayload struct {
	CallType        CallType  `json:"call_type,omitempty"`
	Password        string    `json:"password,omitempty"`
	SessionID       SessionID `json:"session_id,omitempty"`
	PeerUserID      UserID    `json:"peer_user_id,omitempty"`
	MaxParticipants int       `json:"max_participants,omitempty"`
}

type TogglePayload struct {
	Enabled bool `json:"enabled"`
}

type ParticipantInfo struct {
	ConnectionID ConnectionID `json:"connection_id"`
	UserID       UserID       `json:"user_id"`
	UserName     string       `json:"user_name,omitempty"`
	Media        MediaState   `json:"media"`
}

type JoinedRoomPayload struct {
	Participants []ParticipantInfo `json:"participants"`
	CallType     CallType          `json:"call_type"`
	IsNewRoom    bool              `json:"is_new_room"`
}

type UserJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
}

type UserLeftPayload struct {
	ConnectionID ConnectionID `json:"connection_id"`
}

type MediaToggledPayload struct {
	ConnectionID ConnectionID `json:"connection_id"`
	Enabled      bool         `json:"enabled"`
}

type JoinRequestPayload struct {
	ConnectionID ConnectionID `json:"connection_id"`
	UserID       UserID       `json:"user_id"`
	UserName     string       `json:"user_name,omitempty"`
}

type CallEndedPayload struct {
	Reason string `json:"reason"`
}

type ConnectedPayload struct {
	ConnectionID ConnectionID `json:"connection_id"`
	UserID       UserID       `json:"user_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
