package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerdx/nerdx-notify/internal/backend/supabase"
)

// SessionKey is the keyring key holding the realtime session.
const SessionKey = "supabase-session"

var _ supabase.SessionStore = (*SessionStore)(nil)

// SessionStore persists the Supabase session as JSON in the keyring.
type SessionStore struct {
	store *Store
}

// NewSessionStore returns a session store on top of s.
func NewSessionStore(s *Store) *SessionStore {
	return &SessionStore{store: s}
}

// LoadSession returns the stored session, or nil when none is stored.
func (s *SessionStore) LoadSession() (*supabase.Session, error) {
	raw, err := s.store.Get(SessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session supabase.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decoding stored session: %w", err)
	}
	if session.AccessToken == "" || session.UserID == "" {
		return nil, nil
	}
	return &session, nil
}

// SaveSession stores session, replacing any previous one.
func (s *SessionStore) SaveSession(session *supabase.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.store.Set(SessionKey, string(data))
}

// DeleteSession forgets the stored session.
func (s *SessionStore) DeleteSession() error {
	return s.store.Delete(SessionKey)
}
