package domain

import (
	"sort"
	"strings"
	"time"
)

type RoomID string
type SessionID string

type CallType string

const (
	CallTypeAudio       CallType = "audio"
	CallTypeVideo       CallType = "video"
	CallTypeScreenShare CallType = "screen-share"
)

func (c CallType) Valid() bool {
	switch c {
	case CallTypeAudio, CallTypeVideo, CallTypeScreenShare:
		return true
	}
	return false
}

// Room is a signaling namespace. Participants is a set keyed by connection
// id; order carries no meaning.
type Room struct {
	ID              RoomID
	CallType        CallType
	Participants    map[ConnectionID]ParticipantInfo
	MaxParticipants int // 0 means unlimited
	CreatedAt       time.Time
}

// RoomOptions carries the metadata recorded when a room is created lazily.
type RoomOptions struct {
	CallType        CallType
	MaxParticipants int
}

const directRoomSeparator = "_"

// DirectRoomID derives the room of an ad-hoc 1:1 call from the two user ids.
// It assumes exactly two fixed participants and must not be used for
// scheduled sessions, which are keyed by SessionRoomID instead. Ids that
// contain the separator would make two different pairs share a room, so ok
// is false for them.
func DirectRoomID(a, b UserID) (RoomID, bool) {
	if a == "" || b == "" ||
		strings.Contains(string(a), directRoomSeparator) ||
		strings.Contains(string(b), directRoomSeparator) {
		return "", false
	}
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return RoomID(strings.Join(ids, directRoomSeparator)), true
}

// SessionRoomID returns the room that hosts a scheduled session.
func SessionRoomID(id SessionID) RoomID {
	return RoomID(id)
}
