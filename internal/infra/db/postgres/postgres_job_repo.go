package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sitegen-realtime/internal/domain"
	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, kind, status, prompt, language, model, worker_tag,
charge_amount, account_id, retry_count, fail_reason, created_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO generation_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  worker_tag = EXCLUDED.worker_tag,
  charge_amount = EXCLUDED.charge_amount,
  retry_count = EXCLUDED.retry_count,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = EXCLUDED.updated_at;`

	_, err := r.pool.Exec(ctx, q,
		job.ID, job.Kind, job.Status, job.Prompt, job.Language, job.Model, job.WorkerTag,
		job.ChargeAmount, job.AccountID, job.RetryCount, job.FailReason, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, q, id))
}

func (r *jobRepo) ListInFlight(ctx context.Context, limit int) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = 'generating'
ORDER BY created_at
LIMIT $1;`
	return r.list(ctx, q, limit)
}

func (r *jobRepo) ListFailedUnrefunded(ctx context.Context, limit int) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = 'failed' AND charge_amount > 0
ORDER BY created_at
LIMIT $1;`
	return r.list(ctx, q, limit)
}

// TransitionStatus is a conditional update: it applies only when the row is
// still in the expected source status, making the store the arbiter between
// racing writers.
func (r *jobRepo) TransitionStatus(ctx context.Context, id string, from, to model.JobStatus, reason string) (bool, error) {
	const q = `
UPDATE generation_jobs
SET status = $3, fail_reason = $4, updated_at = now()
WHERE id = $1 AND status = $2;`
	tag, err := r.pool.Exec(ctx, q, id, from, to, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *jobRepo) SetRetryCount(ctx context.Context, id string, attempts int) error {
	// The counter only ever moves forward; GREATEST guards against a slow
	// replica writing a stale mirror.
	const q = `
UPDATE generation_jobs
SET retry_count = GREATEST(retry_count, $2), updated_at = now()
WHERE id = $1;`
	_, err := r.pool.Exec(ctx, q, id, attempts)
	return err
}

func (r *jobRepo) ZeroCharge(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE generation_jobs
SET charge_amount = 0, updated_at = now()
WHERE id = $1 AND charge_amount > 0;`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *jobRepo) list(ctx context.Context, q string, limit int) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.Status, &j.Prompt, &j.Language, &j.Model, &j.WorkerTag,
		&j.ChargeAmount, &j.AccountID, &j.RetryCount, &j.FailReason, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}
