// Package worker holds the adapters for the external job-processor backends.
// Two calling conventions exist in the fleet: asynchronous workers only ack
// the invocation and report the outcome later through a job-row write that
// the change feed surfaces; synchronous workers answer with the terminal
// result directly. The recovery path stays agnostic to which one a kind uses.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

var _ adapter.JobProcessor = (*AsyncHTTPProcessor)(nil)

// invokeRequest carries the job's original parameters, replayed verbatim.
type invokeRequest struct {
	JobID    string `json:"job_id"`
	Kind     string `json:"kind"`
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
	Model    string `json:"model"`
	Retry    bool   `json:"retry"`
}

// AsyncHTTPProcessor invokes a fire-and-observe worker endpoint. A 2xx means
// the worker accepted the job; everything after that arrives via the feed.
type AsyncHTTPProcessor struct {
	name     string
	endpoint string
	token    string
	client   *http.Client
	log      *zerolog.Logger
}

func NewAsyncHTTPProcessor(name, endpoint, token string, logger *zerolog.Logger) *AsyncHTTPProcessor {
	procLog := logger.With().Str("component", "AsyncHTTPProcessor").Str("worker", name).Logger()
	return &AsyncHTTPProcessor{
		name:     name,
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{},
		log:      &procLog,
	}
}

func (p *AsyncHTTPProcessor) Name() string { return p.name }

func (p *AsyncHTTPProcessor) Invoke(ctx context.Context, job *model.Job) (adapter.Ack, error) {
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
	p.log.Debug().Str("job", job.ID).Msg("worker accepted job")
	return adapter.Ack{}, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint, token string, payload interface{}) (*http.Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}
