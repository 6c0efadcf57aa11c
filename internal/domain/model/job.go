package model

import "time"

type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusGenerating    JobStatus = "generating"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusManualRequest JobStatus = "manual_request"
)

// Terminal reports whether s is one of the absorbing statuses.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind selects which external worker fleet handles the job, and with it
// which staleness policy applies while the job is in flight.
type JobKind string

const (
	// KindGeneration jobs are handed to the site-builder fleet. A builder
	// stamps WorkerTag as soon as it picks the job up, so an old job with no
	// tag means the worker never started.
	KindGeneration JobKind = "generation"
	// KindRevision jobs go to the revision fleet, which reports progress only
	// through its completion callback. Staleness is judged on elapsed time
	// alone.
	KindRevision JobKind = "revision"
)

// Job is the unit of recoverable work: one website-generation request.
// Completed and failed jobs are kept as history, never deleted.
type Job struct {
	ID     string
	Kind   JobKind
	Status JobStatus

	// Original request parameters, replayed verbatim on retry.
	Prompt   string
	Language string
	Model    string

	// WorkerTag is set once a worker has actually begun work. Empty past the
	// staleness threshold means the worker never started.
	WorkerTag string

	// ChargeAmount is the money (in cents) reserved against the owning
	// account at submission. Zero means the charge has been refunded (or the
	// job was free); this field doubles as the refund-complete marker.
	ChargeAmount int64
	AccountID    string

	// RetryCount mirrors the recovery path's attempt counter so a process
	// restart cannot hand a stuck job a fresh retry budget.
	RetryCount int
	FailReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RetryRecord is the recovery path's working memory for one stuck episode.
// It lives only while the job stays in the generating state.
type RetryRecord struct {
	JobID        string
	Attempts     int
	FirstStuckAt time.Time
}
