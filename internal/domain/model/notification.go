package model

import "time"

// DefaultNotificationTTL is how long a notification stays visible.
const DefaultNotificationTTL = 5000 * time.Millisecond

type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is an ephemeral, auto-dismissing message for the user.
type Notification struct {
	ID        string           `json:"id"` // ULID
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	TTL       time.Duration    `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
}
