package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id domain.ConnectionID) domain.ParticipantInfo {
	return domain.ParticipantInfo{ConnectionID: id, UserID: domain.UserID("user-" + id)}
}

func ids(members []domain.ParticipantInfo) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		out = append(out, m.ConnectionID)
	}
	return out
}

func mustJoin(t *testing.T, d ports.RoomDirectory, roomID domain.RoomID, id domain.ConnectionID, opts domain.RoomOptions) ports.JoinResult {
	t.Helper()
	res, err := d.Join(context.Background(), roomID, member(id), opts)
	require.NoError(t, err)
	return res
}

func members(t *testing.T, d ports.RoomDirectory, roomID domain.RoomID) []domain.ConnectionID {
	t.Helper()
	m, err := d.Members(context.Background(), roomID)
	require.NoError(t, err)
	return ids(m)
}

func count(t *testing.T, d ports.RoomDirectory) int {
	t.Helper()
	n, err := d.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRoomDirectory_JoinSnapshotExcludesJoiner(t *testing.T) {
	d := NewMemoryRoomDirectory()

	first := mustJoin(t, d, "r1", "a", domain.RoomOptions{CallType: domain.CallTypeScreenShare, MaxParticipants: 4})
	assert.True(t, first.IsNewRoom)
	assert.Empty(t, first.ExistingParticipants)

	second := mustJoin(t, d, "r1", "b", domain.RoomOptions{CallType: domain.CallTypeAudio})
	assert.False(t, second.IsNewRoom)
	require.Len(t, second.ExistingParticipants, 1)
	assert.Equal(t, member("a"), second.ExistingParticipants[0])

	room, err := d.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallTypeScreenShare, room.CallType)
	assert.Equal(t, 4, room.MaxParticipants)
	assert.Len(t, room.Participants, 2)
}

func TestRoomDirectory_DuplicateJoinIsSetAdd(t *testing.T) {
	d := NewMemoryRoomDirectory()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})
	mustJoin(t, d, "r1", "b", domain.RoomOptions{})

	again := mustJoin(t, d, "r1", "a", domain.RoomOptions{})

	assert.True(t, again.AlreadyJoined)
	assert.Equal(t, []domain.ConnectionID{"b"}, ids(again.ExistingParticipants))
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, members(t, d, "r1"))
}

func TestRoomDirectory_DefaultCallType(t *testing.T) {
	d := NewMemoryRoomDirectory()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{CallType: "hologram"})

	room, err := d.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallTypeVideo, room.CallType)
}

func TestRoomDirectory_LeaveDestroysEmptyRoom(t *testing.T) {
	d := NewMemoryRoomDirectory()
	ctx := context.Background()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})
	mustJoin(t, d, "r1", "b", domain.RoomOptions{})

	res, err := d.Leave(ctx, "r1", "a")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.False(t, res.RoomDestroyed)
	assert.Equal(t, []domain.ConnectionID{"b"}, ids(res.RemainingParticipants))

	res, err = d.Leave(ctx, "r1", "b")
	require.NoError(t, err)
	assert.True(t, res.RoomDestroyed)
	assert.Equal(t, 0, count(t, d))

	_, err = d.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomDirectory_LeaveNonMember(t *testing.T) {
	d := NewMemoryRoomDirectory()
	ctx := context.Background()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})

	res, err := d.Leave(ctx, "r1", "x")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	res, err = d.Leave(ctx, "nope", "a")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, 1, count(t, d))
}

func TestRoomDirectory_UnknownRoomMembersEmpty(t *testing.T) {
	d := NewMemoryRoomDirectory()
	m, err := d.Members(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestRoomDirectory_SetMedia(t *testing.T) {
	d := NewMemoryRoomDirectory()
	ctx := context.Background()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})

	muted := domain.MediaState{AudioEnabled: false, VideoEnabled: true}
	require.NoError(t, d.SetMedia(ctx, "r1", "a", muted))
	require.NoError(t, d.SetMedia(ctx, "r1", "ghost", muted))

	m, err := d.Members(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, muted, m[0].Media)
}

func TestRoomDirectory_GetReturnsCopy(t *testing.T) {
	d := NewMemoryRoomDirectory()
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})

	room, err := d.Get(context.Background(), "r1")
	require.NoError(t, err)
	room.Participants["intruder"] = member("intruder")

	assert.Equal(t, []domain.ConnectionID{"a"}, members(t, d, "r1"))
}

func TestRoomDirectory_Destroy(t *testing.T) {
	d := NewMemoryRoomDirectory()
	ctx := context.Background()
	mustJoin(t, d, "r1", "b", domain.RoomOptions{})
	mustJoin(t, d, "r1", "a", domain.RoomOptions{})

	gone, err := d.Destroy(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, ids(gone))

	gone, err = d.Destroy(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, 0, count(t, d))
}

func TestRoomDirectory_ConcurrentJoinLeave(t *testing.T) {
	d := NewMemoryRoomDirectory()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.ConnectionID(fmt.Sprintf("c%02d", i))
			d.Join(ctx, "r1", member(id), domain.RoomOptions{})
			if i%2 == 0 {
				d.Leave(ctx, "r1", id)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, members(t, d, "r1"), 25)
}
