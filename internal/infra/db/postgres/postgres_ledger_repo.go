package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sitegen-realtime/internal/domain"
	"sitegen-realtime/internal/domain/ports/repository"
	"sitegen-realtime/internal/infra/metrics"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

// ledgerRepo fronts the shared account ledger. Credits go through a single
// UPDATE ... RETURNING so the balance math happens in the store, not here.
type ledgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

func (r *ledgerRepo) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount %d", domain.ErrInvalidArgument, amount)
	}
	const q = `
UPDATE accounts
SET balance = balance + $2, updated_at = now()
WHERE id = $1
RETURNING balance;`
	var balance int64
	err := r.pool.QueryRow(ctx, q, accountID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	metrics.IncRefund(amount)
	return balance, nil
}

func (r *ledgerRepo) Balance(ctx context.Context, accountID string) (int64, error) {
	const q = `SELECT balance FROM accounts WHERE id = $1;`
	var balance int64
	err := r.pool.QueryRow(ctx, q, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}
