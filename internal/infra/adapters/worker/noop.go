package worker

import (
	"context"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

var _ adapter.JobProcessor = (*NoopProcessor)(nil)

// NoopProcessor accepts every invocation and does nothing. Dev mode only.
type NoopProcessor struct{}

func (NoopProcessor) Name() string { return "noop" }

func (NoopProcessor) Invoke(ctx context.Context, job *model.Job) (adapter.Ack, error) {
	return adapter.Ack{}, nil
}
