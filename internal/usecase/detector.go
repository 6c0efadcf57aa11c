package usecase

import (
	"sync"
	"time"

	"sitegen-realtime/internal/domain/model"
)

// Thresholds holds the staleness policy knobs. Two policies exist because the
// two worker fleets expose different staleness signals: site builders stamp a
// worker tag on pickup, revision workers only ever report back through their
// completion callback.
type Thresholds struct {
	// Policy for jobs whose worker should have stamped a tag by now.
	NoWorkerStuckAfter time.Duration
	NoWorkerMaxRetries int

	// Policy for jobs judged on elapsed time alone.
	CallbackStuckAfter time.Duration
	CallbackMaxRetries int
	CallbackFailAfter  time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		NoWorkerStuckAfter: 4 * time.Minute,
		NoWorkerMaxRetries: 2,
		CallbackStuckAfter: 10 * time.Minute,
		CallbackMaxRetries: 1,
		CallbackFailAfter:  20 * time.Minute,
	}
}

type Decision int

const (
	DecisionHealthy Decision = iota
	DecisionRetry
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionFail:
		return "fail"
	default:
		return "healthy"
	}
}

// Classify is a pure function of (job, record, now): no clock reads, no side
// effects, so the policy table is trivially table-testable. Only generating
// jobs can be stuck; everything else is healthy by definition.
func Classify(job *model.Job, rec model.RetryRecord, now time.Time, th Thresholds) Decision {
	if job.Status != model.JobStatusGenerating {
		return DecisionHealthy
	}
	age := now.Sub(job.CreatedAt)

	switch job.Kind {
	case model.KindRevision:
		// Worker started but never called back: judged on age alone.
		if age < th.CallbackStuckAfter {
			return DecisionHealthy
		}
		if rec.Attempts < th.CallbackMaxRetries {
			return DecisionRetry
		}
		if age >= th.CallbackFailAfter {
			return DecisionFail
		}
		// Retried already; give the retry until the fail threshold.
		return DecisionHealthy
	default:
		// Worker never started: no tag past the threshold means nobody ever
		// picked the job up.
		if job.WorkerTag != "" || age < th.NoWorkerStuckAfter {
			return DecisionHealthy
		}
		if rec.Attempts < th.NoWorkerMaxRetries {
			return DecisionRetry
		}
		return DecisionFail
	}
}

// ScanResult is a disjoint classification: a job appears in at most one list.
type ScanResult struct {
	ToRetry []*model.Job
	ToFail  []*model.Job
}

// Detector keeps the per-episode retry records and classifies the in-flight
// set on every scan. Records are seeded from the job's persisted RetryCount
// the first time a job turns up stuck, so a process restart cannot grant a
// fresh retry budget, and dropped as soon as the job leaves the generating
// state.
type Detector struct {
	mu      sync.Mutex
	records map[string]*model.RetryRecord
	th      Thresholds
}

func NewDetector(th Thresholds) *Detector {
	return &Detector{
		records: make(map[string]*model.RetryRecord),
		th:      th,
	}
}

// Scan classifies the given in-flight jobs against now.
func (d *Detector) Scan(jobs []*model.Job, now time.Time) ScanResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res ScanResult
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Status != model.JobStatusGenerating {
			continue
		}
		seen[job.ID] = true

		rec := d.record(job, now)
		switch Classify(job, *rec, now, d.th) {
		case DecisionRetry:
			res.ToRetry = append(res.ToRetry, job)
		case DecisionFail:
			res.ToFail = append(res.ToFail, job)
		}
	}

	// The stuck episode ends when the job stops showing up as generating.
	for id := range d.records {
		if !seen[id] {
			delete(d.records, id)
		}
	}
	return res
}

// record returns the job's retry record, creating and seeding it on first
// sight. Caller holds the lock.
func (d *Detector) record(job *model.Job, now time.Time) *model.RetryRecord {
	rec, ok := d.records[job.ID]
	if !ok {
		rec = &model.RetryRecord{
			JobID:        job.ID,
			Attempts:     job.RetryCount,
			FirstStuckAt: now,
		}
		d.records[job.ID] = rec
	}
	return rec
}

// Bump increments the job's attempt counter and returns the new value. Called
// by the executor before the processor invocation so a crash mid-call cannot
// reset the budget.
func (d *Detector) Bump(job *model.Job) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.record(job, time.Now())
	rec.Attempts++
	return rec.Attempts
}

// Forget drops the job's retry record, ending the stuck episode.
func (d *Detector) Forget(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, jobID)
}

// Attempts reports the tracked attempt count (0 when no episode is open).
func (d *Detector) Attempts(jobID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[jobID]; ok {
		return rec.Attempts
	}
	return 0
}
