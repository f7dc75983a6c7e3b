package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// WebSocketConfig configures a WebSocketAdapter, per spec.md §4.3:
// "accepts connections up to max_connections, enforces the cap by
// rejecting with 'Maximum connections reached'; each frame is one
// message."
type WebSocketConfig struct {
	Name          string
	SourceID      string
	ListenAddress string
	ListenPort    int
	Path          string
	MaxConnections int
	AutoParse     bool
	Schema        *frame.Schema
}

// WebSocketAdapter accepts WebSocket connections, treating each received
// frame as one message.
type WebSocketAdapter struct {
	base
	cfg       WebSocketConfig
	server    *http.Server
	upgrader  websocket.Upgrader
	conns     atomic.Int64
	log       *slog.Logger
}

// NewWebSocketAdapter constructs a WebSocketAdapter publishing on b.
func NewWebSocketAdapter(cfg WebSocketConfig, b *bus.Bus, log *slog.Logger) *WebSocketAdapter {
	if log == nil {
		log = slog.Default()
	}
	a := &WebSocketAdapter{
		cfg: cfg,
		log: log.With("adapter", cfg.Name, "protocol", "WEBSOCKET"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	a.base = base{name: cfg.Name, protocol: "WEBSOCKET", sourceID: cfg.SourceID, bus: b, autoParse: cfg.AutoParse}
	if cfg.Schema != nil {
		a.base.parser = frame.NewParser(cfg.Schema)
	}
	return a
}

func (a *WebSocketAdapter) Start() error {
	if err := a.transitionStart(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.handle)

	addr := fmt.Sprintf("%s:%d", a.cfg.ListenAddress, a.cfg.ListenPort)
	a.server = &http.Server{Addr: addr, Handler: mux}
	a.state.Store(StateRunning)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("websocket adapter stopped unexpectedly", "error", err)
		}
	}()
	a.log.Info("websocket adapter started", "address", addr, "path", a.cfg.Path)
	return nil
}

func (a *WebSocketAdapter) handle(w http.ResponseWriter, r *http.Request) {
	if a.cfg.MaxConnections > 0 && a.conns.Load() >= int64(a.cfg.MaxConnections) {
		http.Error(w, "Maximum connections reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.stats.errors.Add(1)
		return
	}
	a.conns.Add(1)
	defer a.conns.Add(-1)
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a.publishReceived(peer, data)
	}
}

func (a *WebSocketAdapter) Stop() error {
	if err := a.transitionStop(); err != nil {
		return err
	}
	if a.server != nil {
		a.server.Shutdown(context.Background())
	}
	a.state.Store(StateStopped)
	a.log.Info("websocket adapter stopped")
	return nil
}

func (a *WebSocketAdapter) Restart() error {
	if err := a.Stop(); err != nil {
		return err
	}
	return a.Start()
}
