package model

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// Notification is a user-facing message emitted by the recovery path.
// Delivery is best-effort; the sink may drop it without affecting job state.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	Data      map[string]interface{}
	CreatedAt time.Time
}
