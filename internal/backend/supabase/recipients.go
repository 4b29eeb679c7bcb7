package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/model"
)

const (
	recipientsPath   = "/rest/v1/notification_recipients"
	pushTokensPath   = "/rest/v1/push_tokens"
	recipientsTable  = "notification_recipients"
	recipientsSchema = "public"

	// recipientSelect embeds the joined notification under "notification".
	recipientSelect = "*,notification:notifications(*)"

	// newestFirst orders by creation time with id as the tiebreak so that
	// offset and keyset pages agree.
	newestFirst = "created_at.desc,id.desc"
)

// FetchRecipientPage returns up to limit joined records for userID starting
// at offset, newest first.
func (c *Client) FetchRecipientPage(
	ctx context.Context,
	userID string,
	limit, offset int,
) ([]model.Recipient, error) {
	q := url.Values{}
	q.Set("select", recipientSelect)
	q.Set("user_id", "eq."+userID)
	q.Set("order", newestFirst)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var rows []recipientRow
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   recipientsPath,
		query:  q,
		result: &rows,
	}); err != nil {
		return nil, fmt.Errorf("fetching recipients (limit %d, offset %d): %w", limit, offset, err)
	}
	return toModels(rows), nil
}

// FetchRecipientsBefore returns up to limit joined records for userID that
// sort strictly after before in newest-first order.
func (c *Client) FetchRecipientsBefore(
	ctx context.Context,
	userID string,
	limit int,
	before backend.Cursor,
) ([]model.Recipient, error) {
	ts := before.CreatedAt.UTC().Format(time.RFC3339Nano)

	q := url.Values{}
	q.Set("select", recipientSelect)
	q.Set("user_id", "eq."+userID)
	q.Set("or", fmt.Sprintf("(created_at.lt.%s,and(created_at.eq.%s,id.lt.%s))", ts, ts, before.ID))
	q.Set("order", newestFirst)
	q.Set("limit", strconv.Itoa(limit))

	var rows []recipientRow
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   recipientsPath,
		query:  q,
		result: &rows,
	}); err != nil {
		return nil, fmt.Errorf("fetching recipients before %s: %w", before.ID, err)
	}
	return toModels(rows), nil
}

// FetchRecipientByID returns the joined record, or nil when none exists.
func (c *Client) FetchRecipientByID(ctx context.Context, recipientID string) (*model.Recipient, error) {
	q := url.Values{}
	q.Set("select", recipientSelect)
	q.Set("id", "eq."+recipientID)
	q.Set("limit", "1")

	var rows []recipientRow
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   recipientsPath,
		query:  q,
		result: &rows,
	}); err != nil {
		return nil, fmt.Errorf("fetching recipient %s: %w", recipientID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0].toModel()
	return &r, nil
}

// MarkRecipientRead sets read_at on one of userID's unread records.
func (c *Client) MarkRecipientRead(ctx context.Context, recipientID, userID string) (bool, error) {
	q := url.Values{}
	q.Set("id", "eq."+recipientID)
	q.Set("user_id", "eq."+userID)
	q.Set("read_at", "is.null")

	if err := c.patchRecipients(ctx, q, map[string]string{"read_at": c.stamp()}); err != nil {
		return false, fmt.Errorf("marking recipient %s read: %w", recipientID, err)
	}
	return true, nil
}

// MarkAllRecipientsRead sets read_at on every unread record of userID.
func (c *Client) MarkAllRecipientsRead(ctx context.Context, userID string) (bool, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("read_at", "is.null")

	if err := c.patchRecipients(ctx, q, map[string]string{"read_at": c.stamp()}); err != nil {
		return false, fmt.Errorf("marking all recipients of %s read: %w", userID, err)
	}
	return true, nil
}

// DismissRecipient sets dismissed_at on one of userID's records.
func (c *Client) DismissRecipient(ctx context.Context, recipientID, userID string) (bool, error) {
	q := url.Values{}
	q.Set("id", "eq."+recipientID)
	q.Set("user_id", "eq."+userID)

	if err := c.patchRecipients(ctx, q, map[string]string{"dismissed_at": c.stamp()}); err != nil {
		return false, fmt.Errorf("dismissing recipient %s: %w", recipientID, err)
	}
	return true, nil
}

// RegisterPushToken upserts a device push token for userID.
func (c *Client) RegisterPushToken(ctx context.Context, userID, token, platform string) error {
	q := url.Values{}
	q.Set("on_conflict", "token")

	body := map[string]string{
		"user_id":    userID,
		"token":      token,
		"platform":   platform,
		"updated_at": c.stamp(),
	}
	if err := c.do(ctx, request{
		method: http.MethodPost,
		path:   pushTokensPath,
		query:  q,
		body:   body,
		prefer: "resolution=merge-duplicates,return=minimal",
	}); err != nil {
		return fmt.Errorf("registering push token: %w", err)
	}
	return nil
}

func (c *Client) patchRecipients(ctx context.Context, q url.Values, body map[string]string) error {
	return c.do(ctx, request{
		method: http.MethodPatch,
		path:   recipientsPath,
		query:  q,
		body:   body,
		prefer: "return=minimal",
	})
}

func (c *Client) stamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
