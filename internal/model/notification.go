package model

import "time"

// NotificationType drives the icon and color a notification is rendered with.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationUpdate  NotificationType = "update"
	NotificationPromo   NotificationType = "promo"
)

// ParseNotificationType maps a raw type string to a NotificationType.
// Unknown values fall back to NotificationInfo.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(s); t {
	case NotificationInfo, NotificationWarning, NotificationUpdate, NotificationPromo:
		return t
	default:
		return NotificationInfo
	}
}

// Notification is the server-owned message a recipient record points at.
// The client never mutates it.
type Notification struct {
	// ID is the unique identifier of the notification.
	ID string `json:"id"`

	// Title and Body are the display text.
	Title string `json:"title"`
	Body  string `json:"body"`

	// Type selects presentation only.
	Type NotificationType `json:"type"`

	// Metadata is an open key-value map. It may carry an action URL and label.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Audience and Status are server-side targeting fields, opaque to the client.
	Audience string `json:"audience,omitempty"`
	Status   string `json:"status,omitempty"`

	// CreatedAt is when the notification was authored.
	CreatedAt time.Time `json:"created_at"`
}

// ActionURL returns the optional action link stored in metadata.
func (n *Notification) ActionURL() string {
	return n.metaString("action_url")
}

// ActionLabel returns the optional action label stored in metadata.
func (n *Notification) ActionLabel() string {
	return n.metaString("action_label")
}

func (n *Notification) metaString(key string) string {
	if n == nil || n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

// Recipient is the per-user delivery record linking a user to a notification.
// It carries the read and dismiss state the client manages.
type Recipient struct {
	// ID is the unique identifier and the dedup key in the client store.
	ID string `json:"id"`

	// NotificationID references the delivered Notification.
	NotificationID string `json:"notification_id"`

	// UserID is the owner of this record.
	UserID string `json:"user_id"`

	// DeliveredAt, ReadAt and DismissedAt are nil until the event happens.
	// A nil ReadAt means unread.
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
	DismissedAt *time.Time `json:"dismissed_at"`

	// CreatedAt orders records newest first.
	CreatedAt time.Time `json:"created_at"`

	// Notification is the joined notification row. Raw realtime payloads
	// leave it nil.
	Notification *Notification `json:"notification,omitempty"`
}

// Unread reports whether the record has not been read yet.
func (r Recipient) Unread() bool {
	return r.ReadAt == nil
}

// Title returns the joined notification title, or an empty string when the
// record has not been hydrated.
func (r Recipient) Title() string {
	if r.Notification == nil {
		return ""
	}
	return r.Notification.Title
}

// Clone returns a deep copy so that snapshots handed to callers never alias
// store-owned memory.
func (r Recipient) Clone() Recipient {
	out := r
	out.DeliveredAt = cloneTime(r.DeliveredAt)
	out.ReadAt = cloneTime(r.ReadAt)
	out.DismissedAt = cloneTime(r.DismissedAt)
	if r.Notification != nil {
		n := *r.Notification
		if r.Notification.Metadata != nil {
			n.Metadata = make(map[string]any, len(r.Notification.Metadata))
			for k, v := range r.Notification.Metadata {
				n.Metadata[k] = v
			}
		}
		out.Notification = &n
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
