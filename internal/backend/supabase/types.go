package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerdx/nerdx-notify/internal/model"
)

// errorResponse covers the error bodies of PostgREST and GoTrue.
type errorResponse struct {
	Message          string `json:"message"`
	Code             string `json:"code"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

// timestampLayouts are the timestamptz renderings seen from PostgREST
// and from Realtime change payloads.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// flexTime is a timestamp that accepts any of timestampLayouts.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *flexTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// notificationRow is a row of the notifications table.
type notificationRow struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Type      string          `json:"type"`
	Metadata  map[string]any  `json:"metadata"`
	Audience  json.RawMessage `json:"audience"`
	Status    string          `json:"status"`
	CreatedAt flexTime        `json:"created_at"`
}

// recipientRow is a row of the notification_recipients table, optionally
// with the notification embedded by the select alias.
type recipientRow struct {
	ID             string           `json:"id"`
	NotificationID string           `json:"notification_id"`
	UserID         string           `json:"user_id"`
	DeliveredAt    *flexTime        `json:"delivered_at"`
	ReadAt         *flexTime        `json:"read_at"`
	DismissedAt    *flexTime        `json:"dismissed_at"`
	CreatedAt      flexTime         `json:"created_at"`
	Notification   *notificationRow `json:"notification"`
}

func (r recipientRow) toModel() model.Recipient {
	out := model.Recipient{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		UserID:         r.UserID,
		DeliveredAt:    r.DeliveredAt.ptr(),
		ReadAt:         r.ReadAt.ptr(),
		DismissedAt:    r.DismissedAt.ptr(),
		CreatedAt:      r.CreatedAt.Time,
	}
	if n := r.Notification; n != nil {
		out.Notification = &model.Notification{
			ID:        n.ID,
			Title:     n.Title,
			Body:      n.Body,
			Type:      model.ParseNotificationType(n.Type),
			Metadata:  n.Metadata,
			Audience:  rawText(n.Audience),
			Status:    n.Status,
			CreatedAt: n.CreatedAt.Time,
		}
	}
	return out
}

func toModels(rows []recipientRow) []model.Recipient {
	out := make([]model.Recipient, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

// rawText renders an opaque JSON value as text: strings unquoted, null as
// empty, anything else verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// tokenResponse is the GoTrue /token response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// phxMessage is a Phoenix channel frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

// replyPayload is the payload of a phx_reply frame.
type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// changeFilter is one postgres_changes subscription entry in a join.
type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// joinPayload is the phx_join payload for a Realtime channel.
type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []changeFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

// changePayload is the payload of a postgres_changes frame.
type changePayload struct {
	Data struct {
		Schema string       `json:"schema"`
		Table  string       `json:"table"`
		Type   string       `json:"type"`
		Record recipientRow `json:"record"`
	} `json:"data"`
	IDs []int64 `json:"ids"`
}
