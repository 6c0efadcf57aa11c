package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sitegen-realtime/internal/domain"
)

// WebsocketSource dials the change-feed gateway over websocket. The gateway
// applies the per-audience row filters server-side; we only declare which
// collections we want in the query string.
type WebsocketSource struct {
	baseURL string
	token   string
}

func NewWebsocketSource(baseURL, token string) *WebsocketSource {
	return &WebsocketSource{baseURL: baseURL, token: token}
}

func (s *WebsocketSource) Open(ctx context.Context, audience string, collections []string) (Conn, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set("audience", audience)
	q.Set("collections", strings.Join(collections, ","))
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{}
	if s.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.token}}
	}
	c, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("feed dial: %w", err)
	}
	c.SetReadLimit(1 << 20)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Next(ctx context.Context) (Frame, error) {
	var f Frame
	if err := wsjson.Read(ctx, w.c, &f); err != nil {
		if websocket.CloseStatus(err) != -1 {
			return Frame{}, fmt.Errorf("%w: %v", domain.ErrFeedClosed, err)
		}
		return Frame{}, err
	}
	return f, nil
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client stop")
}
