package usecase

import (
	"context"
	"testing"
	"time"

	"sitegen-realtime/internal/domain/model"
)

// Full escalation of a generation job whose worker never starts: two retries
// four minutes apart, then force-fail with refund and a single notification.
func TestRecoveryFlow_WorkerNeverStarts(t *testing.T) {
	deps, exec := newRecoveryDeps()
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID:           "j1",
		Kind:         model.KindGeneration,
		Status:       model.JobStatusGenerating,
		Prompt:       "landing page for a bakery",
		ChargeAmount: 500,
		AccountID:    "acct-1",
		CreatedAt:    created,
	}
	deps.jobs.Save(ctx, job)

	scanAt := func(at time.Time) ScanResult {
		inFlight, err := deps.jobs.ListInFlight(ctx, 100)
		if err != nil {
			t.Fatalf("list in flight: %v", err)
		}
		return deps.det.Scan(inFlight, at)
	}

	// T0+4m: first retry.
	res := scanAt(created.Add(4*time.Minute + time.Second))
	if len(res.ToRetry) != 1 || len(res.ToFail) != 0 {
		t.Fatalf("scan 1: %+v", res)
	}
	if err := exec.Retry(ctx, res.ToRetry[0]); err != nil {
		t.Fatalf("retry 1: %v", err)
	}
	if got := deps.det.Attempts("j1"); got != 1 {
		t.Fatalf("attempts after retry 1 = %d", got)
	}

	// T0+8m: still no worker tag, second and last retry.
	res = scanAt(created.Add(8 * time.Minute))
	if len(res.ToRetry) != 1 || len(res.ToFail) != 0 {
		t.Fatalf("scan 2: %+v", res)
	}
	if err := exec.Retry(ctx, res.ToRetry[0]); err != nil {
		t.Fatalf("retry 2: %v", err)
	}

	// T0+12m: budget exhausted, classification flips to fail.
	res = scanAt(created.Add(12 * time.Minute))
	if len(res.ToRetry) != 0 || len(res.ToFail) != 1 {
		t.Fatalf("scan 3: %+v", res)
	}
	if err := exec.Fail(ctx, res.ToFail[0], "worker never started"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if got := deps.proc.callCount(); got != 2 {
		t.Errorf("processor invoked %d times, want 2", got)
	}
	stored, _ := deps.jobs.FindByID(ctx, "j1")
	if stored.Status != model.JobStatusFailed {
		t.Errorf("final status = %s, want failed", stored.Status)
	}
	if stored.ChargeAmount != 0 {
		t.Errorf("charge not refunded: %d", stored.ChargeAmount)
	}
	if bal, _ := deps.ledger.Balance(ctx, "acct-1"); bal != 500 {
		t.Errorf("balance = %d, want 500", bal)
	}
	if got := deps.notifier.sentCount(); got != 1 {
		t.Errorf("notifications = %d, want exactly 1", got)
	}

	// A later sweep sees nothing left to refund.
	unrefunded, _ := deps.jobs.ListFailedUnrefunded(ctx, 100)
	if len(unrefunded) != 0 {
		t.Errorf("unexpected unrefunded jobs: %d", len(unrefunded))
	}
}
