package adapter

import (
	"context"

	"sitegen-realtime/internal/domain/model"
)

// NotificationSink delivers user-facing messages. Best-effort: callers log
// and swallow errors, never retry.
type NotificationSink interface {
	Notify(ctx context.Context, userID, title, message string, typ model.NotificationType, data map[string]interface{}) error
}
