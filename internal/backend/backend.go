// Package backend defines the contract between the notification client and
// the hosted backend that stores recipient rows, authenticates the realtime
// session and delivers push events.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerdx/nerdx-notify/internal/model"
)

// ErrNoSession is returned when the secondary realtime session is absent.
// Callers treat it as a soft degradation, not a failure.
var ErrNoSession = errors.New("no realtime session")

// AuthError indicates that the backend rejected the credentials in use.
// It is returned by adapters when a 401 response is received.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// EventKind tags a realtime push event.
type EventKind int

const (
	EventInsert EventKind = iota + 1
	EventUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventInsert:
		return "INSERT"
	case EventUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Event is a push event delivered on the per-user channel. Record holds the
// raw row as sent by the backend; for inserts it usually lacks the joined
// notification and has to be hydrated before display.
type Event struct {
	Kind   EventKind
	Record model.Recipient
}

// Handler receives events for one subscription. Events are delivered
// sequentially from a single goroutine.
type Handler func(Event)

// Subscription is a live event channel. Close is idempotent.
type Subscription interface {
	Close() error
}

// Cursor identifies a position in the newest-first recipient ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Client is everything the notification client needs from the backend.
type Client interface {
	// FetchRecipientPage returns up to limit records for userID starting at
	// offset, newest first, joined with their notification.
	FetchRecipientPage(ctx context.Context, userID string, limit, offset int) ([]model.Recipient, error)

	// FetchRecipientByID returns the joined record, or nil when it does not exist.
	FetchRecipientByID(ctx context.Context, recipientID string) (*model.Recipient, error)

	// MarkRecipientRead sets read_at on one unread record.
	MarkRecipientRead(ctx context.Context, recipientID, userID string) (bool, error)

	// MarkAllRecipientsRead sets read_at on every unread record of userID.
	MarkAllRecipientsRead(ctx context.Context, userID string) (bool, error)

	// DismissRecipient sets dismissed_at on one record.
	DismissRecipient(ctx context.Context, recipientID, userID string) (bool, error)

	// Subscribe opens the per-user event channel. h is invoked for every
	// INSERT and UPDATE until the subscription is closed.
	Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error)

	// CurrentSessionUserID returns the user id of the realtime session, or
	// ErrNoSession when there is none.
	CurrentSessionUserID(ctx context.Context) (string, error)
}

// KeysetFetcher is an optional capability for cursor based paging.
type KeysetFetcher interface {
	// FetchRecipientsBefore returns up to limit records strictly older than
	// before in (created_at, id) descending order.
	FetchRecipientsBefore(ctx context.Context, userID string, limit int, before Cursor) ([]model.Recipient, error)
}

// CursorOf returns the cursor positioned at r.
func CursorOf(r model.Recipient) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// Before reports whether r sorts strictly after c in newest-first order,
// i.e. whether it belongs to a page requested with c as the cursor.
func (c Cursor) Before(r model.Recipient) bool {
	if r.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return r.CreatedAt.Equal(c.CreatedAt) && r.ID < c.ID
}
