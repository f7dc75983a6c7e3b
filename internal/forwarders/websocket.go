package forwarders

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ocx/gateway/internal/gwerrors"
)

// WebSocketForwarder maintains one long-lived client connection to a
// target, reconnecting with the same exponential backoff as the retry
// policy, per spec.md §4.7: "WebSocket: maintain one long-lived client
// connection with automatic reconnection using the same backoff policy."
type WebSocketForwarder struct {
	URL string
	cfg Config

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketForwarder builds a forwarder dialing url (ws:// or wss://).
func NewWebSocketForwarder(url string, cfg Config) *WebSocketForwarder {
	return &WebSocketForwarder{URL: url, cfg: cfg}
}

func (f *WebSocketForwarder) Start() error {
	return f.dial()
}

func (f *WebSocketForwarder) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.URL, nil)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "websocket dial failed", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *WebSocketForwarder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

// Forward sends payload as a JSON text frame, reconnecting and retrying on
// connection failure per the shared backoff policy.
func (f *WebSocketForwarder) Forward(ctx context.Context, payload map[string]any) (Result, error) {
	maxRetries := f.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return withRetry(ctx, maxRetries, func(ctx context.Context, n int) (Result, error) {
		return f.attempt(payload)
	})
}

func (f *WebSocketForwarder) attempt(payload map[string]any) (Result, error) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		if err := f.dial(); err != nil {
			return Result{Status: StatusFailure}, err
		}
		f.mu.Lock()
		conn = f.conn
		f.mu.Unlock()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeRemote4xx, "payload marshal failed", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "websocket write failed", err)
	}
	return Result{Status: StatusSuccess}, nil
}
