package repository

import (
	"context"

	"sitegen-realtime/internal/domain/model"
)

// JobRepository is the authoritative store for generation jobs. All mutations
// are conditional updates keyed by job id and current status, never blind
// overwrites: the store is the single writer arbiter between the UI path and
// the recovery path.
type JobRepository interface {
	Save(ctx context.Context, job *model.Job) error
	FindByID(ctx context.Context, id string) (*model.Job, error)

	// ListInFlight returns jobs currently in the generating state, oldest
	// first.
	ListInFlight(ctx context.Context, limit int) ([]*model.Job, error)

	// ListFailedUnrefunded returns failed jobs whose charge has not been
	// zeroed, for the compensation sweeper.
	ListFailedUnrefunded(ctx context.Context, limit int) ([]*model.Job, error)

	// TransitionStatus moves a job from one status to another and records the
	// reason. Returns false (no error) when the job was not in the expected
	// status, i.e. someone else won the race.
	TransitionStatus(ctx context.Context, id string, from, to model.JobStatus, reason string) (bool, error)

	// SetRetryCount mirrors the in-memory attempt counter onto the job row.
	SetRetryCount(ctx context.Context, id string, attempts int) error

	// ZeroCharge marks the job's charge refunded. Returns false when the
	// charge was already zero.
	ZeroCharge(ctx context.Context, id string) (bool, error)
}
