// Package bus is the fan-out core between the change-feed client and the UI
// consumers. A small number of feed connections push raw change events in;
// many independent subscribers get debounced, ordered, per-collection
// delivery out.
package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/infra/metrics"
)

const DefaultDebounce = 100 * time.Millisecond

// Handler receives one change event. Handlers run on the flush goroutine;
// a panicking handler is isolated and logged, it never affects the others.
type Handler func(model.ChangeEvent)

type subscription struct {
	collection string
	fn         Handler
}

// Bus batches ingested events over a short debounce window and dispatches
// each one to every subscriber of its collection, in registration order.
// Events are never dropped or merged: the window only coalesces flushes.
type Bus struct {
	mu       sync.Mutex
	subs     map[string][]*subscription
	queue    []model.ChangeEvent
	timer    *time.Timer
	debounce time.Duration
	closed   bool
	total    int

	log *zerolog.Logger
}

func New(debounce time.Duration, logger *zerolog.Logger) *Bus {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	busLog := logger.With().Str("component", "EventBus").Logger()
	return &Bus{
		subs:     make(map[string][]*subscription),
		debounce: debounce,
		log:      &busLog,
	}
}

// Subscribe registers fn for a collection and returns a disposer that removes
// exactly this registration. When a collection's last subscriber is removed
// the collection entry disappears; Collections reflects that, as a hint for
// the feed owner.
func (b *Bus) Subscribe(collection string, fn Handler) func() {
	sub := &subscription{collection: collection, fn: fn}

	b.mu.Lock()
	b.subs[collection] = append(b.subs[collection], sub)
	b.total++
	metrics.SetSubscriptionsActive(b.total)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub) })
	}
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.collection]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			b.total--
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, sub.collection)
	} else {
		b.subs[sub.collection] = list
	}
	metrics.SetSubscriptionsActive(b.total)
}

// SubscriberCount returns the number of active registrations for a collection.
func (b *Bus) SubscriberCount(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[collection])
}

// Collections lists collections that currently have at least one subscriber,
// sorted for stable output.
func (b *Bus) Collections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for c := range b.subs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Ingest queues an event and (re)arms the debounce timer. Called by the
// change-feed client; safe for concurrent use.
func (b *Bus) Ingest(ev model.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	metrics.IncEventsIngested(ev.Collection)

	if b.timer == nil {
		b.timer = time.AfterFunc(b.debounce, b.flush)
	} else {
		b.timer.Reset(b.debounce)
	}
}

// flush drains the queue and delivers every queued event, in arrival order,
// to a snapshot of each event's subscriber list. Runs on the timer goroutine.
func (b *Bus) flush() {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.timer = nil
	// Snapshot subscriber lists so dispatch runs without the lock and an
	// unsubscribe during delivery cannot shift indices mid-batch.
	snapshot := make(map[string][]*subscription, len(b.subs))
	for c, list := range b.subs {
		snapshot[c] = append([]*subscription(nil), list...)
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	metrics.ObserveFlushBatch(len(batch))

	for _, ev := range batch {
		for _, sub := range snapshot[ev.Collection] {
			b.deliver(sub, ev)
		}
	}
}

func (b *Bus) deliver(sub *subscription, ev model.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncCallbackFailure()
			b.log.Error().
				Str("collection", ev.Collection).
				Interface("panic", r).
				Msg("subscriber callback panicked")
		}
	}()
	sub.fn(ev)
	metrics.IncEventsDispatched(ev.Collection)
}

// Flush forces immediate delivery of anything queued, without waiting for the
// debounce window. Used on shutdown and in tests.
func (b *Bus) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	b.flush()
}

// Close stops the timer and drops any queued events. Idempotent; Ingest after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.queue = nil
}
