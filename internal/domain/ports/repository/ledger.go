package repository

import "context"

// LedgerRepository fronts the external account ledger. Only the compensation
// path touches it.
type LedgerRepository interface {
	// Credit adds amount (cents) to the account balance and returns the new
	// balance.
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}
