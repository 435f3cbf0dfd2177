package memory

import (
	"context"
	"testing"

	"callhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_PutGetDelete(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, repo.Put(ctx, &domain.ScheduledSession{ID: "s1", HostID: "h", MaxParticipants: 5}))

	s, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, s.MaxParticipants)

	s.MaxParticipants = 100
	again, _ := repo.Get(ctx, "s1")
	assert.Equal(t, 5, again.MaxParticipants)

	require.NoError(t, repo.Delete(ctx, "s1"))
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), domain.ErrSessionNotFound)
}
