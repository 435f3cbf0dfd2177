package memory

import (
	"testing"

	"callhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_RegisterDefaults(t *testing.T) {
	r := NewMemoryConnectionRegistry()
	r.Register("c1", domain.Identity{UserID: "u1"})

	conn, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID(""), conn.RoomID)
	assert.True(t, conn.Media.AudioEnabled)
	assert.True(t, conn.Media.VideoEnabled)
	assert.Equal(t, 1, r.Count())
}

func TestConnectionRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewMemoryConnectionRegistry()
	r.Register("c1", domain.Identity{UserID: "u1"})
	r.SetRoom("c1", "r1")

	r.Register("c1", domain.Identity{UserID: "u1", UserName: "Renamed"})

	conn, _ := r.Get("c1")
	assert.Equal(t, "Renamed", conn.Identity.UserName)
	assert.Equal(t, domain.RoomID("r1"), conn.RoomID)
	assert.Equal(t, 1, r.Count())
}

func TestConnectionRegistry_UnknownIDsAreNoops(t *testing.T) {
	r := NewMemoryConnectionRegistry()
	off := false

	r.SetRoom("ghost", "r1")
	r.SetMediaState("ghost", domain.MediaUpdate{Audio: &off})

	_, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, domain.RoomID(""), r.Unregister("ghost"))
}

func TestConnectionRegistry_PartialMediaUpdate(t *testing.T) {
	r := NewMemoryConnectionRegistry()
	r.Register("c1", domain.Identity{UserID: "u1"})
	off := false

	r.SetMediaState("c1", domain.MediaUpdate{Video: &off})

	conn, _ := r.Get("c1")
	assert.True(t, conn.Media.AudioEnabled)
	assert.False(t, conn.Media.VideoEnabled)
}

func TestConnectionRegistry_UnregisterReturnsLastRoom(t *testing.T) {
	r := NewMemoryConnectionRegistry()
	r.Register("c1", domain.Identity{UserID: "u1"})
	r.SetRoom("c1", "r1")

	conn, _ := r.Get("c1")
	assert.False(t, conn.JoinedAt.IsZero())

	assert.Equal(t, domain.RoomID("r1"), r.Unregister("c1"))
	assert.Equal(t, domain.RoomID(""), r.Unregister("c1"))
	assert.Equal(t, 0, r.Count())
}
