package credential

import (
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/backend/supabase"
)

func newTestSessions() *SessionStore {
	return NewSessionStore(NewStore(keyring.NewArrayKeyring(nil)))
}

func TestSessionStore_LoadEmpty(t *testing.T) {
	s := newTestSessions()

	got, err := s.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_SaveLoadDelete(t *testing.T) {
	s := newTestSessions()
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSession(&supabase.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expires,
		UserID:       "user-1",
		Email:        "a@example.com",
	}))

	got, err := s.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, expires.Equal(got.ExpiresAt))

	require.NoError(t, s.DeleteSession())
	got, err = s.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is fine.
	require.NoError(t, s.DeleteSession())
}

func TestSessionStore_CorruptEntry(t *testing.T) {
	store := NewStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, store.Set(SessionKey, "{not json"))

	_, err := NewSessionStore(store).LoadSession()
	assert.Error(t, err)
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(keyring.NewArrayKeyring(nil))

	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
