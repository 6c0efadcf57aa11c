package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrConflict         = errors.New("conditional update did not apply")
	ErrRecoveryInFlight = errors.New("recovery already in flight for job")
	ErrFeedClosed       = errors.New("change feed closed")
	ErrLockNotAcquired  = errors.New("scan lock held elsewhere")
	ErrBusClosed        = errors.New("event bus closed")
)
