package usecase

import (
	"testing"
	"time"

	"sitegen-realtime/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func generationJob(id string, age time.Duration, workerTag string) *model.Job {
	return &model.Job{
		ID:        id,
		Kind:      model.KindGeneration,
		Status:    model.JobStatusGenerating,
		WorkerTag: workerTag,
		CreatedAt: t0.Add(-age),
	}
}

func revisionJob(id string, age time.Duration) *model.Job {
	return &model.Job{
		ID:        id,
		Kind:      model.KindRevision,
		Status:    model.JobStatusGenerating,
		CreatedAt: t0.Add(-age),
	}
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name     string
		job      *model.Job
		attempts int
		want     Decision
	}{
		{"generation fresh", generationJob("j", 1*time.Minute, ""), 0, DecisionHealthy},
		{"generation stuck no attempts", generationJob("j", 4*time.Minute+time.Second, ""), 0, DecisionRetry},
		{"generation stuck one attempt", generationJob("j", 8*time.Minute, ""), 1, DecisionRetry},
		{"generation budget exhausted", generationJob("j", 4*time.Minute+time.Second, ""), 2, DecisionFail},
		{"generation worker started", generationJob("j", 30*time.Minute, "builder-7"), 0, DecisionHealthy},
		{"revision fresh", revisionJob("j", 9*time.Minute), 0, DecisionHealthy},
		{"revision stuck first time", revisionJob("j", 10*time.Minute+time.Second), 0, DecisionRetry},
		{"revision waiting on retry", revisionJob("j", 15*time.Minute), 1, DecisionHealthy},
		{"revision past fail threshold", revisionJob("j", 20*time.Minute+time.Second), 1, DecisionFail},
		{"revision never retried past fail threshold", revisionJob("j", 25*time.Minute), 0, DecisionRetry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := model.RetryRecord{JobID: tc.job.ID, Attempts: tc.attempts}
			if got := Classify(tc.job, rec, t0, th); got != tc.want {
				t.Errorf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassify_TerminalStatusIsHealthy(t *testing.T) {
	job := generationJob("j", time.Hour, "")
	job.Status = model.JobStatusCompleted
	if got := Classify(job, model.RetryRecord{}, t0, DefaultThresholds()); got != DecisionHealthy {
		t.Fatalf("terminal job classified %s, want healthy", got)
	}
}

func TestDetector_ScanDisjointOutputs(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	jobs := []*model.Job{
		generationJob("retry-me", 5*time.Minute, ""),
		generationJob("healthy", time.Minute, ""),
		revisionJob("fail-me", 21*time.Minute),
	}
	// fail-me has already burned its single retry.
	d.Bump(jobs[2])

	res := d.Scan(jobs, t0)

	if len(res.ToRetry) != 1 || res.ToRetry[0].ID != "retry-me" {
		t.Fatalf("unexpected retry set: %+v", res.ToRetry)
	}
	if len(res.ToFail) != 1 || res.ToFail[0].ID != "fail-me" {
		t.Fatalf("unexpected fail set: %+v", res.ToFail)
	}
	for _, r := range res.ToRetry {
		for _, f := range res.ToFail {
			if r.ID == f.ID {
				t.Fatalf("job %s classified twice", r.ID)
			}
		}
	}
}

func TestDetector_SeedsAttemptsFromPersistedCounter(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	// Simulates a restart: the in-memory record is gone but the job row still
	// carries two burned attempts.
	job := generationJob("j", 12*time.Minute, "")
	job.RetryCount = 2

	res := d.Scan([]*model.Job{job}, t0)
	if len(res.ToFail) != 1 {
		t.Fatalf("expected restart-surviving budget to force fail, got %+v", res)
	}
}

func TestDetector_ForgetsRecordsWhenJobLeaves(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	job := generationJob("j", 5*time.Minute, "")
	d.Scan([]*model.Job{job}, t0)
	d.Bump(job)
	if got := d.Attempts("j"); got != 1 {
		t.Fatalf("expected 1 tracked attempt, got %d", got)
	}

	// Job no longer in the in-flight set: episode over, record dropped.
	d.Scan(nil, t0.Add(time.Minute))
	if got := d.Attempts("j"); got != 0 {
		t.Fatalf("expected record to be dropped, still tracking %d attempts", got)
	}
}

func TestDetector_PolicyBEscalation(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	job := revisionJob("j", 10*time.Minute+time.Second)

	res := d.Scan([]*model.Job{job}, t0)
	if len(res.ToRetry) != 1 {
		t.Fatalf("expected first stuck occurrence to retry, got %+v", res)
	}
	d.Bump(job)

	// Ten minutes later, still generating: single retry burned, past the
	// fail threshold.
	later := t0.Add(10 * time.Minute)
	res = d.Scan([]*model.Job{job}, later)
	if len(res.ToFail) != 1 {
		t.Fatalf("expected escalation to fail, got %+v", res)
	}
}
