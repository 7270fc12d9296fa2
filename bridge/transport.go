package bridge

import (
	"context"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/goliatone/go-sequence"
)

// Transport is a duplex message channel carrying text frames.
type Transport interface {
	// Receive blocks until a frame arrives or the transport is closed.
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// WebsocketTransport exchanges text frames over a websocket connection.
type WebsocketTransport struct {
	conn *websocket.Conn
}

func NewWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	return &WebsocketTransport{conn: conn}
}

// Dial opens a client websocket to url, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, url, origin string) (*WebsocketTransport, error) {
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, sequence.RoutingError("invalid websocket address", err, map[string]any{"url": url})
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, sequence.RoutingError("websocket dial failed", err, map[string]any{"url": url})
	}
	return NewWebsocketTransport(conn), nil
}

func (t *WebsocketTransport) Receive(_ context.Context) ([]byte, error) {
	var msg string
	if err := websocket.Message.Receive(t.conn, &msg); err != nil {
		return nil, err
	}
	return []byte(msg), nil
}

func (t *WebsocketTransport) Send(_ context.Context, frame []byte) error {
	return websocket.Message.Send(t.conn, string(frame))
}

func (t *WebsocketTransport) Close() error {
	return t.conn.Close()
}

// Handler serves b on every accepted websocket connection.
func Handler[T any](b *Bridge[T]) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		if err := b.Serve(conn.Request().Context(), NewWebsocketTransport(conn)); err != nil {
			b.logger.Debug("websocket bridge closed: %v", err)
		}
	})
}
