// Package supabase implements backend.Client on top of a Supabase project:
// PostgREST for recipient rows, GoTrue for the realtime session and the
// Realtime websocket for push events.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
)

var (
	_ backend.Client        = (*Client)(nil)
	_ backend.KeysetFetcher = (*Client)(nil)
)

// Client is a thin HTTP client for a Supabase project. It handles apikey
// and Bearer authentication, JSON marshaling, and automatic retry with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	maxRetries int
	heartbeat  time.Duration
	reconnect  time.Duration
	log        *zap.Logger
	now        func() time.Time

	sessions  SessionStore
	mu        sync.Mutex
	session   *Session
	refreshMu sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithSessionStore sets where the realtime session is persisted.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.sessions = s }
}

// WithHeartbeat sets the realtime heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithReconnectInterval sets the minimum spacing between realtime reconnects.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnect = d
		}
	}
}

// WithMaxRetries sets how often a rate limited request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a client for the project at baseURL
// (e.g. https://abc.supabase.co) using the public anon key.
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		heartbeat:  25 * time.Second,
		reconnect:  2 * time.Second,
		log:        zap.NewNop(),
		now:        time.Now,
		sessions:   memorySessions{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("supabase")
	return c
}

// request describes one REST call.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	result interface{}
	prefer string

	// anon forces the anon key as bearer, for auth endpoints.
	anon bool
	// bearer overrides the bearer token.
	bearer string
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(ctx context.Context, r request) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	bearer := r.bearer
	if bearer == "" {
		bearer = c.anonKey
		if !r.anon {
			if token, err := c.accessToken(ctx); err == nil {
				bearer = token
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, r.method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.prefer != "" {
			req.Header.Set("Prefer", r.prefer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", r.method, r.path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", r.method, r.path)
			c.log.Debug("rate limited", zap.String("path", r.path), zap.Duration("wait", waitDuration))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &backend.AuthError{
				Message: fmt.Sprintf("%s %s rejected: %s", r.method, r.path, apiMessage(respBody)),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{
				status:  resp.StatusCode,
				method:  r.method,
				path:    r.path,
				message: apiMessage(respBody),
			}
		}

		// No content to parse (e.g. 204).
		if r.result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, r.result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", r.method, r.path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// statusError is a non-2xx, non-401 response.
type statusError struct {
	status  int
	method  string
	path    string
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase API error (%d) on %s %s: %s", e.status, e.method, e.path, e.message)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// apiMessage extracts the message from a PostgREST or GoTrue error body.
func apiMessage(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		for _, m := range []string{e.Message, e.ErrorDescription, e.Msg, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
