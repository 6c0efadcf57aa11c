package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func ev(collection string, n int) model.ChangeEvent {
	return model.ChangeEvent{
		Collection: collection,
		Kind:       model.ChangeUpdate,
		After:      map[string]interface{}{"seq": n},
	}
}

// collector records delivered events thread-safely.
type collector struct {
	mu   sync.Mutex
	seen []model.ChangeEvent
}

func (c *collector) handler(e model.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, e)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBus_DebounceCoalescing(t *testing.T) {
	b := New(40*time.Millisecond, testLogger())
	defer b.Close()

	c := &collector{}
	b.Subscribe(model.CollectionJobs, c.handler)

	// Three ingests inside one window must coalesce into a single flush that
	// still delivers all three events.
	for i := 0; i < 3; i++ {
		b.Ingest(ev(model.CollectionJobs, i))
	}

	if got := c.count(); got != 0 {
		t.Fatalf("expected no delivery before the debounce window, got %d", got)
	}

	waitFor(t, time.Second, func() bool { return c.count() == 3 })

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.seen {
		if e.After["seq"] != i {
			t.Errorf("event %d delivered out of order: got seq=%v", i, e.After["seq"])
		}
	}
}

func TestBus_IngestResetsWindow(t *testing.T) {
	b := New(50*time.Millisecond, testLogger())
	defer b.Close()

	c := &collector{}
	b.Subscribe(model.CollectionJobs, c.handler)

	b.Ingest(ev(model.CollectionJobs, 0))
	time.Sleep(30 * time.Millisecond)
	b.Ingest(ev(model.CollectionJobs, 1)) // re-arms the timer

	// 30ms after the second ingest the original window has long passed, but
	// the reset one has not.
	time.Sleep(30 * time.Millisecond)
	if got := c.count(); got != 0 {
		t.Fatalf("delivery happened before the re-armed window elapsed: %d events", got)
	}

	waitFor(t, time.Second, func() bool { return c.count() == 2 })
}

func TestBus_SubscriberIsolation(t *testing.T) {
	b := New(10*time.Millisecond, testLogger())
	defer b.Close()

	c := &collector{}
	b.Subscribe(model.CollectionJobs, func(model.ChangeEvent) { panic("boom") })
	b.Subscribe(model.CollectionJobs, c.handler)
	b.Subscribe(model.CollectionJobs, func(model.ChangeEvent) { panic(fmt.Errorf("boom too")) })

	b.Ingest(ev(model.CollectionJobs, 0))
	b.Flush()

	if got := c.count(); got != 1 {
		t.Fatalf("healthy subscriber expected exactly 1 delivery, got %d", got)
	}
}

func TestBus_ReferenceCounting(t *testing.T) {
	b := New(10*time.Millisecond, testLogger())
	defer b.Close()

	c := &collector{}
	unsub1 := b.Subscribe(model.CollectionAccounts, c.handler)
	unsub2 := b.Subscribe(model.CollectionAccounts, c.handler)

	if got := b.SubscriberCount(model.CollectionAccounts); got != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", got)
	}

	unsub1()
	unsub1() // double-dispose must not remove the surviving registration

	if got := b.SubscriberCount(model.CollectionAccounts); got != 1 {
		t.Fatalf("expected 1 subscription after single unsubscribe, got %d", got)
	}
	if cols := b.Collections(); len(cols) != 1 || cols[0] != model.CollectionAccounts {
		t.Fatalf("expected collection to remain registered, got %v", cols)
	}

	unsub2()
	if cols := b.Collections(); len(cols) != 0 {
		t.Fatalf("expected empty collection set after last unsubscribe, got %v", cols)
	}
}

func TestBus_PerCollectionRouting(t *testing.T) {
	b := New(10*time.Millisecond, testLogger())
	defer b.Close()

	jobs := &collector{}
	accounts := &collector{}
	b.Subscribe(model.CollectionJobs, jobs.handler)
	b.Subscribe(model.CollectionAccounts, accounts.handler)

	b.Ingest(ev(model.CollectionJobs, 0))
	b.Ingest(ev(model.CollectionAccounts, 1))
	b.Ingest(ev(model.CollectionJobs, 2))
	b.Flush()

	if jobs.count() != 2 {
		t.Errorf("jobs subscriber expected 2 events, got %d", jobs.count())
	}
	if accounts.count() != 1 {
		t.Errorf("accounts subscriber expected 1 event, got %d", accounts.count())
	}
}

func TestBus_IngestAfterCloseIsNoop(t *testing.T) {
	b := New(10*time.Millisecond, testLogger())

	c := &collector{}
	b.Subscribe(model.CollectionJobs, c.handler)

	b.Close()
	b.Close() // idempotent
	b.Ingest(ev(model.CollectionJobs, 0))
	b.Flush()

	if got := c.count(); got != 0 {
		t.Fatalf("expected no delivery after Close, got %d", got)
	}
}
