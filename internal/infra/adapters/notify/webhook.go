package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*WebhookSink)(nil)

type webhookPayload struct {
	ID      string                 `json:"id"`
	UserID  string                 `json:"user_id"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data,omitempty"`
	SentAt  time.Time              `json:"sent_at"`
}

// WebhookSink posts notifications to the platform's notification service.
// Strictly best-effort: one attempt, short timeout, errors go to the caller
// to log and forget.
type WebhookSink struct {
	url    string
	token  string
	client *http.Client
	log    *zerolog.Logger
}

func NewWebhookSink(url, token string, logger *zerolog.Logger) *WebhookSink {
	sinkLog := logger.With().Str("component", "WebhookSink").Logger()
	return &WebhookSink{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    &sinkLog,
	}
}

func (s *WebhookSink) Notify(ctx context.Context, userID, title, message string, typ model.NotificationType, data map[string]interface{}) error {
	payload := webhookPayload{
		ID:      ulid.Make().String(),
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    string(typ),
		Data:    data,
		SentAt:  time.Now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification sink returned %s", resp.Status)
	}
	s.log.Debug().Str("user", userID).Str("title", title).Msg("notification delivered")
	return nil
}
