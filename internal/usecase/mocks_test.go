package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain"
	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Job

	// optional hooks to simulate failures
	TransitionErr error
	ZeroChargeErr error
	SetRetryErr   error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Save(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) ListInFlight(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusGenerating {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) ListFailedUnrefunded(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusFailed && j.ChargeAmount > 0 {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) TransitionStatus(ctx context.Context, id string, from, to model.JobStatus, reason string) (bool, error) {
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status != from {
		return false, nil
	}
	j.Status = to
	j.FailReason = reason
	return true, nil
}

func (m *memJobRepo) SetRetryCount(ctx context.Context, id string, attempts int) error {
	if m.SetRetryErr != nil {
		return m.SetRetryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.store[id]; ok {
		j.RetryCount = attempts
	}
	return nil
}

func (m *memJobRepo) ZeroCharge(ctx context.Context, id string) (bool, error) {
	if m.ZeroChargeErr != nil {
		return false, m.ZeroChargeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.ChargeAmount == 0 {
		return false, nil
	}
	j.ChargeAmount = 0
	return true, nil
}

// memLedger records credits per account.
type memLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	credits   int
	CreditErr error
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]int64)}
}

func (m *memLedger) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if m.CreditErr != nil {
		return 0, m.CreditErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] += amount
	m.credits++
	return m.balances[accountID], nil
}

func (m *memLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

func (m *memLedger) creditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credits
}

// mockProcessor counts invocations; InvokeFunc overrides the default ack.
type mockProcessor struct {
	mu         sync.Mutex
	calls      int
	InvokeFunc func(ctx context.Context, job *model.Job) (adapter.Ack, error)
}

func (p *mockProcessor) Name() string { return "mock" }

func (p *mockProcessor) Invoke(ctx context.Context, job *model.Job) (adapter.Ack, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.InvokeFunc != nil {
		return p.InvokeFunc(ctx, job)
	}
	return adapter.Ack{}, nil
}

func (p *mockProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// mockNotifier records emitted notifications.
type mockNotifier struct {
	mu        sync.Mutex
	sent      []model.Notification
	NotifyErr error
}

func (n *mockNotifier) Notify(ctx context.Context, userID, title, message string, typ model.NotificationType, data map[string]interface{}) error {
	if n.NotifyErr != nil {
		return n.NotifyErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
		Data:    data,
	})
	return nil
}

func (n *mockNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
