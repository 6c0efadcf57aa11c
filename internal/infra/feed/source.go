package feed

import "context"

// Frame is one raw change notification as it arrives off the wire, before
// normalization into a model.ChangeEvent.
type Frame struct {
	Collection string                 `json:"collection"`
	Kind       string                 `json:"kind"`
	Before     map[string]interface{} `json:"before"`
	After      map[string]interface{} `json:"after"`
}

// Conn is one open change-feed connection. Next blocks until a frame arrives,
// the context is cancelled, or the transport fails.
type Conn interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Source opens change-feed connections. Implementations own the transport
// (websocket, NATS); the server side filters rows per audience, so one
// connection carries every collection the audience watches.
type Source interface {
	Open(ctx context.Context, audience string, collections []string) (Conn, error)
}
