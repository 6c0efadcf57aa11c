package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain"
	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
	"sitegen-realtime/internal/domain/ports/repository"
)

// Compile-time check
var _ RecoveryExecutor = (*recoveryUC)(nil)

type RecoveryExecutor interface {
	// Retry re-invokes the job's external processor with its original
	// parameters. An invocation error leaves the job generating; elapsed
	// time, not call outcome, drives eventual failure.
	Retry(ctx context.Context, job *model.Job) error
	// Fail force-fails the job, refunds its charge and notifies the owner.
	Fail(ctx context.Context, job *model.Job, reason string) error
}

// RetryTracker is the attempt bookkeeping the executor shares with the
// detector.
type RetryTracker interface {
	Bump(job *model.Job) int
	Forget(jobID string)
}

type recoveryUC struct {
	jobs       repository.JobRepository
	processors map[model.JobKind]adapter.JobProcessor
	comp       CompensationEngine
	notifier   adapter.NotificationSink
	tracker    RetryTracker

	invokeTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}

	log *zerolog.Logger
}

func NewRecoveryExecutor(
	jobs repository.JobRepository,
	processors map[model.JobKind]adapter.JobProcessor,
	comp CompensationEngine,
	notifier adapter.NotificationSink,
	tracker RetryTracker,
	invokeTimeout time.Duration,
	logger *zerolog.Logger,
) *recoveryUC {
	if invokeTimeout <= 0 {
		invokeTimeout = 5 * time.Minute
	}
	recLog := logger.With().Str("component", "RecoveryExecutor").Logger()
	return &recoveryUC{
		jobs:          jobs,
		processors:    processors,
		comp:          comp,
		notifier:      notifier,
		tracker:       tracker,
		invokeTimeout: invokeTimeout,
		inFlight:      make(map[string]struct{}),
		log:           &recLog,
	}
}

// tryBegin is the single-flight gate: checked and set in one synchronous
// step, so two near-simultaneous recovery actions for the same job id cannot
// both proceed.
func (u *recoveryUC) tryBegin(jobID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, busy := u.inFlight[jobID]; busy {
		return false
	}
	u.inFlight[jobID] = struct{}{}
	return true
}

func (u *recoveryUC) end(jobID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.inFlight, jobID)
}

func (u *recoveryUC) Retry(ctx context.Context, job *model.Job) error {
	if !u.tryBegin(job.ID) {
		return domain.ErrRecoveryInFlight
	}
	defer u.end(job.ID)

	proc, ok := u.processors[job.Kind]
	if !ok {
		return fmt.Errorf("%w: no processor for kind %q", domain.ErrInvalidArgument, job.Kind)
	}

	// Count the attempt before the call: a crash mid-invoke must not hand the
	// job a fresh budget. The store mirror is best-effort; the in-memory
	// record stays authoritative for this process.
	attempts := u.tracker.Bump(job)
	if err := u.jobs.SetRetryCount(ctx, job.ID, attempts); err != nil {
		u.log.Warn().Err(err).Str("job", job.ID).Msg("could not mirror retry count")
	}

	u.log.Info().
		Str("job", job.ID).
		Str("kind", string(job.Kind)).
		Str("processor", proc.Name()).
		Int("attempt", attempts).
		Msg("re-invoking processor for stuck job")

	callCtx, cancel := context.WithTimeout(ctx, u.invokeTimeout)
	defer cancel()
	ack, err := proc.Invoke(callCtx, job)
	if err != nil {
		// Fire-and-observe: the job stays generating and the next scan
		// re-evaluates. The attempt still counts against the budget.
		u.log.Error().Err(err).Str("job", job.ID).Msg("processor invocation failed")
		return nil
	}
	if !ack.Terminal {
		return nil
	}

	// Synchronous-style processor: the ack carries the terminal outcome.
	if ack.Status == model.JobStatusFailed {
		return u.fail(ctx, job, ack.Detail)
	}
	applied, err := u.jobs.TransitionStatus(ctx, job.ID, model.JobStatusGenerating, ack.Status, "")
	if err != nil {
		return fmt.Errorf("record terminal status: %w", err)
	}
	if applied {
		u.tracker.Forget(job.ID)
	}
	return nil
}

func (u *recoveryUC) Fail(ctx context.Context, job *model.Job, reason string) error {
	if !u.tryBegin(job.ID) {
		return domain.ErrRecoveryInFlight
	}
	defer u.end(job.ID)
	return u.fail(ctx, job, reason)
}

// fail runs the terminal sequence: status write, compensation, notification.
// The three steps are not transactional; refund idempotence plus the sweeper
// cover the gap when one of the later steps fails.
func (u *recoveryUC) fail(ctx context.Context, job *model.Job, reason string) error {
	applied, err := u.jobs.TransitionStatus(ctx, job.ID, model.JobStatusGenerating, model.JobStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !applied {
		// Lost the race against a late worker write. Only proceed when the
		// authoritative state actually is failed.
		fresh, err := u.jobs.FindByID(ctx, job.ID)
		if err != nil {
			return err
		}
		if fresh.Status != model.JobStatusFailed {
			u.log.Info().
				Str("job", job.ID).
				Str("status", string(fresh.Status)).
				Msg("job resolved before force-fail, skipping")
			u.tracker.Forget(job.ID)
			return nil
		}
	}

	u.tracker.Forget(job.ID)
	u.log.Warn().Str("job", job.ID).Str("reason", reason).Msg("job force-failed")

	if err := u.comp.Refund(ctx, job); err != nil {
		// Job stays failed with the charge unrefunded; the sweeper re-runs
		// the idempotent refund later.
		u.log.Error().Err(err).Str("job", job.ID).Msg("compensation failed")
	}

	if err := u.notifier.Notify(ctx, job.AccountID,
		"Website generation failed",
		fmt.Sprintf("Your generation request could not be completed: %s", reason),
		model.NotificationError,
		map[string]interface{}{"job_id": job.ID, "refund_cents": job.ChargeAmount},
	); err != nil {
		u.log.Warn().Err(err).Str("job", job.ID).Msg("failure notification not delivered")
	}
	return nil
}
