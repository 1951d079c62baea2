package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

func TestUserStoreRoundTrip(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, store.ErrUserNotFound)

	user := &models.User{
		UID:   "u1",
		Token: &oauth2.Token{AccessToken: "at", TokenType: "bearer"},
		AvailableChats: []models.Chat{
			{ID: "c1", Type: "Team", Name: "general"},
		},
	}
	require.NoError(t, s.Save(ctx, user))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.IsAuthenticated())
	require.Len(t, got.AvailableChats, 1)
	created := got.CreatedAt

	// upsert keeps created_at
	user.AvailableChats = nil
	require.NoError(t, s.Save(ctx, user))
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.Empty(t, got.AvailableChats)

	require.NoError(t, s.Delete(ctx, "u1"))
	_, err = s.Get(ctx, "u1")
	require.ErrorIs(t, err, store.ErrUserNotFound)
	require.ErrorIs(t, s.Delete(ctx, "u1"), store.ErrUserNotFound)
}

func TestUserStoreRosterIsolation(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()

	user := &models.User{
		UID:   "u1",
		Token: &oauth2.Token{AccessToken: "at", TokenType: "bearer"},
		AvailableChats: []models.Chat{
			{ID: "c1", Type: "Direct"},
		},
	}
	require.NoError(t, s.Save(ctx, user))

	// mutating the caller's roster after Save must not leak into the store
	user.AvailableChats[0].DisplayName = "mutated after save"
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, got.AvailableChats[0].DisplayName)

	// nor may two readers alias the same roster entries
	other, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	got.AvailableChats[0].DisplayName = "Jamie Park"
	require.Empty(t, other.AvailableChats[0].DisplayName)
}
