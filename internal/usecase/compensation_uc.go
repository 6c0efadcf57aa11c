package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/repository"
)

// Compile-time check
var _ CompensationEngine = (*compensationUC)(nil)

type CompensationEngine interface {
	// Refund credits the job's reserved charge back to the owning account.
	// Idempotent: charge_amount == 0 is the refund-complete marker, re-read
	// from the store immediately before crediting, so a re-run after a crash
	// never double-credits. Already-refunded is success, not an error.
	Refund(ctx context.Context, job *model.Job) error
}

type compensationUC struct {
	jobs   repository.JobRepository
	ledger repository.LedgerRepository
	log    *zerolog.Logger
}

func NewCompensationEngine(jobs repository.JobRepository, ledger repository.LedgerRepository, logger *zerolog.Logger) *compensationUC {
	compLog := logger.With().Str("component", "CompensationEngine").Logger()
	return &compensationUC{jobs: jobs, ledger: ledger, log: &compLog}
}

func (u *compensationUC) Refund(ctx context.Context, job *model.Job) error {
	// Authoritative re-read: this runs after a crash-prone path, in-memory
	// flags cannot be trusted.
	fresh, err := u.jobs.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("refund: reload job: %w", err)
	}
	if fresh.ChargeAmount == 0 {
		return nil
	}

	newBalance, err := u.ledger.Credit(ctx, fresh.AccountID, fresh.ChargeAmount)
	if err != nil {
		return fmt.Errorf("refund: credit account: %w", err)
	}

	// Zeroing the charge marks the refund durable. If this write is lost the
	// next run re-credits; that window is the documented durability boundary,
	// kept small by doing nothing else in between.
	if _, err := u.jobs.ZeroCharge(ctx, fresh.ID); err != nil {
		return fmt.Errorf("refund: credited %d but charge not cleared: %w", fresh.ChargeAmount, err)
	}

	u.log.Info().
		Str("job", fresh.ID).
		Str("account", fresh.AccountID).
		Int64("cents", fresh.ChargeAmount).
		Int64("balance", newBalance).
		Msg("charge refunded")
	return nil
}
