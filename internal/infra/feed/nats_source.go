package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain"
)

const natsSubjectPrefix = "feed."

func natsSubject(audience, collection string) string {
	return natsSubjectPrefix + audience + "." + collection
}

// NATSSource consumes the change feed off NATS subjects, one subject per
// audience+collection. NATS handles its own transport reconnects; a closed
// connection surfaces as ErrFeedClosed so the client opens a fresh one.
type NATSSource struct {
	url string
	log *zerolog.Logger
}

func NewNATSSource(url string, logger *zerolog.Logger) *NATSSource {
	natsLog := logger.With().Str("component", "NATSSource").Logger()
	return &NATSSource{url: url, log: &natsLog}
}

func (s *NATSSource) Open(ctx context.Context, audience string, collections []string) (Conn, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(s.url,
		nats.Name("sitegen-feed-"+audience),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	ch := make(chan Frame, 64)
	conn := &natsConn{nc: nc, ch: ch, closed: closed}
	for _, col := range collections {
		sub, err := nc.Subscribe(natsSubject(audience, col), func(msg *nats.Msg) {
			var f Frame
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				s.log.Warn().Err(err).Str("subject", msg.Subject).Msg("bad feed frame")
				return
			}
			select {
			case ch <- f:
			default:
				s.log.Warn().Str("subject", msg.Subject).Msg("dropping frame, consumer behind")
			}
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats subscribe: %w", err)
		}
		conn.subs = append(conn.subs, sub)
	}
	return conn, nil
}

type natsConn struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	ch     chan Frame
	closed chan struct{}
}

func (n *natsConn) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-n.closed:
		return Frame{}, domain.ErrFeedClosed
	case f := <-n.ch:
		return f, nil
	}
}

func (n *natsConn) Close() error {
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	n.nc.Close()
	return nil
}
