package adapter

import (
	"context"

	"sitegen-realtime/internal/domain/model"
)

// Ack is the immediate answer from a job processor invocation. Asynchronous
// workers only acknowledge receipt; their result arrives later as a status
// write on the job row, surfaced through the change feed. Synchronous workers
// return the terminal outcome directly.
type Ack struct {
	// Terminal is true when Status carries the job's final outcome.
	Terminal bool
	Status   model.JobStatus
	Detail   string
}

// JobProcessor is an external worker backend that produces websites. The
// recovery path treats it as opaque: invoke with the job's original
// parameters and observe, never interpret.
type JobProcessor interface {
	Name() string
	Invoke(ctx context.Context, job *model.Job) (Ack, error)
}
