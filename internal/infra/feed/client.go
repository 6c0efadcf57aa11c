// Package feed maintains the long-lived change-feed connections, one per
// audience, and pushes normalized change events into the bus.
package feed

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/infra/metrics"
)

type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
)

// CollectionsFor returns the static collection interest for an audience.
// Per-subscription negotiation is deliberately not attempted; the bus's
// refcount is only a hint.
func CollectionsFor(aud Audience) []string {
	switch aud {
	case AudienceAdmin:
		return []string{
			model.CollectionAdminTasks,
			model.CollectionBalanceRequests,
			model.CollectionAppeals,
			model.CollectionMemberships,
		}
	default:
		return []string{
			model.CollectionJobs,
			model.CollectionAccounts,
			model.CollectionNotifications,
		}
	}
}

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Ingester is the bus-facing half the client needs.
type Ingester interface {
	Ingest(ev model.ChangeEvent)
}

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Client owns one audience's feed connection: dial, read loop, reconnect with
// jittered exponential backoff, health reporting. Transport failures degrade
// Healthy() and never propagate into the bus.
type Client struct {
	audience Audience
	source   Source
	sink     Ingester
	log      *zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewClient(audience Audience, source Source, sink Ingester, logger *zerolog.Logger) *Client {
	feedLog := logger.With().
		Str("component", "ChangeFeedClient").
		Str("audience", string(audience)).
		Logger()
	return &Client{
		audience: audience,
		source:   source,
		sink:     sink,
		log:      &feedLog,
	}
}

func (c *Client) Audience() Audience { return c.audience }

func (c *Client) State() State { return State(c.state.Load()) }

// Healthy reports whether the connection is currently established.
func (c *Client) Healthy() bool { return c.State() == StateConnected }

// Start begins the connect/read loop. A second Start is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
}

// Stop tears the connection down and waits for the loop to exit. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateClosed)

	collections := CollectionsFor(c.audience)
	backoff := minBackoff

	for {
		c.setState(StateConnecting)
		conn, err := c.source.Open(ctx, string(c.audience), collections)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.setState(StateDisconnected)
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("feed connect failed")
			if !sleep(ctx, jitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff)
			metrics.IncFeedReconnect(string(c.audience))
			continue
		}

		c.setState(StateConnected)
		backoff = minBackoff
		c.log.Info().Strs("collections", collections).Msg("feed connected")

		err = c.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.setState(StateDisconnected)
		c.log.Warn().Err(err).Msg("feed disconnected, reconnecting")
		metrics.IncFeedReconnect(string(c.audience))
		if !sleep(ctx, jitter(backoff)) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			return err
		}
		ev, err := normalize(frame)
		if err != nil {
			c.log.Warn().Err(err).Str("collection", frame.Collection).Msg("dropping malformed frame")
			continue
		}
		c.sink.Ingest(ev)
	}
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	metrics.SetFeedConnected(string(c.audience), s == StateConnected)
}

var errUnknownKind = errors.New("unknown change kind")

func normalize(f Frame) (model.ChangeEvent, error) {
	var kind model.ChangeKind
	switch f.Kind {
	case "insert", "create":
		kind = model.ChangeInsert
	case "update", "change":
		kind = model.ChangeUpdate
	case "delete", "remove":
		kind = model.ChangeDelete
	default:
		return model.ChangeEvent{}, errUnknownKind
	}
	ev := model.ChangeEvent{
		Collection: f.Collection,
		Kind:       kind,
		Before:     f.Before,
		After:      f.After,
	}
	switch kind {
	case model.ChangeInsert:
		ev.Before = nil
	case model.ChangeDelete:
		ev.After = nil
	}
	return ev, nil
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))/2
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
