package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
)

// expiryMargin refreshes sessions slightly before they expire.
const expiryMargin = 60 * time.Second

// Session is a GoTrue session used to authenticate the realtime channel
// and row access. It is separate from the app's primary login.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
}

// Expired reports whether the access token should be refreshed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt.Add(-expiryMargin))
}

// SessionStore persists the session between runs. LoadSession returns
// nil, nil when no session is stored.
type SessionStore interface {
	LoadSession() (*Session, error)
	SaveSession(s *Session) error
	DeleteSession() error
}

// memorySessions is the default store: nothing survives the process.
type memorySessions struct{}

func (memorySessions) LoadSession() (*Session, error) { return nil, nil }
func (memorySessions) SaveSession(*Session) error     { return nil }
func (memorySessions) DeleteSession() error           { return nil }

// SignInWithPassword starts a session with email and password and stores it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")

	s, err := c.token(ctx, q, map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("signing in %s: %w", email, err)
	}
	if err := c.setSession(s); err != nil {
		return nil, err
	}
	c.log.Info("signed in", zap.String("user_id", s.UserID))
	return s, nil
}

// RefreshSession exchanges a refresh token for a new session and stores it.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", "refresh_token")

	s, err := c.token(ctx, q, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	if err := c.setSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

// SignOut revokes the current session on the server and forgets it locally.
// The local session is removed even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.currentSession()
	if err != nil {
		return err
	}

	var remoteErr error
	if s != nil {
		remoteErr = c.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			bearer: s.AccessToken,
		})
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if err := c.sessions.DeleteSession(); err != nil {
		return fmt.Errorf("deleting stored session: %w", err)
	}
	if remoteErr != nil {
		return fmt.Errorf("signing out: %w", remoteErr)
	}
	return nil
}

// CurrentSessionUserID returns the user of the realtime session, refreshing
// it when expired. It returns backend.ErrNoSession when there is none.
func (c *Client) CurrentSessionUserID(ctx context.Context) (string, error) {
	s, err := c.liveSession(ctx)
	if err != nil {
		return "", err
	}
	return s.UserID, nil
}

// accessToken returns a non-expired access token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	s, err := c.liveSession(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// liveSession returns the current session, refreshing it when expired. A
// refresh the server rejects drops the session.
func (c *Client) liveSession(ctx context.Context) (*Session, error) {
	s, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, backend.ErrNoSession
	}
	if !s.Expired(c.now()) {
		return s, nil
	}

	// Refresh tokens rotate: only one caller may spend the current one.
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	s, err = c.currentSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, backend.ErrNoSession
	}
	if !s.Expired(c.now()) {
		return s, nil
	}

	refreshed, err := c.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		if backend.IsAuthError(err) || isGrantError(err) {
			c.log.Info("stored session rejected, signing out", zap.Error(err))
			c.mu.Lock()
			c.session = nil
			c.mu.Unlock()
			if err := c.sessions.DeleteSession(); err != nil {
				c.log.Warn("deleting rejected session", zap.Error(err))
			}
			return nil, backend.ErrNoSession
		}
		return nil, err
	}
	return refreshed, nil
}

// currentSession returns the in-memory session, loading it from the store
// on first use.
func (c *Client) currentSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}
	s, err := c.sessions.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("loading stored session: %w", err)
	}
	c.session = s
	return s, nil
}

func (c *Client) setSession(s *Session) error {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if err := c.sessions.SaveSession(s); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// token calls the GoTrue token endpoint.
func (c *Client) token(ctx context.Context, q url.Values, body map[string]string) (*Session, error) {
	var resp tokenResponse
	if err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  q,
		body:   body,
		result: &resp,
		anon:   true,
	}); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, errors.New("token response without access token or user")
	}

	expires := c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresAt > 0 {
		expires = time.Unix(resp.ExpiresAt, 0)
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expires,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
	}, nil
}

// isGrantError reports a 400 from the token endpoint, which GoTrue uses for
// invalid or revoked refresh tokens.
func isGrantError(err error) bool {
	var apiErr *statusError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusBadRequest
}
