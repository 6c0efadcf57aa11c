package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

var _ adapter.JobProcessor = (*SyncHTTPProcessor)(nil)

type syncResult struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// SyncHTTPProcessor invokes a worker that blocks until the job is done and
// answers with the terminal outcome. The caller's context bounds the call.
type SyncHTTPProcessor struct {
	name     string
	endpoint string
	token    string
	client   *http.Client
	log      *zerolog.Logger
}

func NewSyncHTTPProcessor(name, endpoint, token string, logger *zerolog.Logger) *SyncHTTPProcessor {
	procLog := logger.With().Str("component", "SyncHTTPProcessor").Str("worker", name).Logger()
	return &SyncHTTPProcessor{
		name:     name,
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{},
		log:      &procLog,
	}
}

func (p *SyncHTTPProcessor) Name() string { return p.name }

func (p *SyncHTTPProcessor) Invoke(ctx context.Context, job *model.Job) (adapter.Ack, error) {
	resp, err := postJSON(ctx, p.client, p.endpoint, p.token, invokeRequest{
		JobID:    job.ID,
		Kind:     string(job.Kind),
		Prompt:   job.Prompt,
		Language: job.Language,
		Model:    job.Model,
		Retry:    job.RetryCount > 0,
	})
	if err != nil {
		return adapter.Ack{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return adapter.Ack{}, fmt.Errorf("worker %s: invoke returned %s", p.name, resp.Status)
	}

	var res syncResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return adapter.Ack{}, fmt.Errorf("worker %s: decode result: %w", p.name, err)
	}
	status, err := terminalStatus(res.Status)
	if err != nil {
		return adapter.Ack{}, fmt.Errorf("worker %s: %w", p.name, err)
	}
	return adapter.Ack{Terminal: true, Status: status, Detail: res.Detail}, nil
}

func terminalStatus(s string) (model.JobStatus, error) {
	switch model.JobStatus(s) {
	case model.JobStatusCompleted:
		return model.JobStatusCompleted, nil
	case model.JobStatusFailed:
		return model.JobStatusFailed, nil
	default:
		return "", fmt.Errorf("non-terminal result status %q", s)
	}
}
