package notify

import (
	"context"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*NoopSink)(nil)

// NoopSink swallows all notifications. Dev mode only.
type NoopSink struct{}

func (NoopSink) Notify(ctx context.Context, userID, title, message string, typ model.NotificationType, data map[string]interface{}) error {
	return nil
}
