package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// HTTPConfig configures an HTTPAdapter, per spec.md §4.3: "exposes
// endpoint/method to the external REST surface; each request body is one
// message; responds 200 after enqueue."
type HTTPConfig struct {
	Name          string
	SourceID      string
	ListenAddress string
	ListenPort    int
	Endpoint      string
	Method        string
	AutoParse     bool
	Schema        *frame.Schema
}

// HTTPAdapter runs a dedicated HTTP server accepting one message per
// request body.
type HTTPAdapter struct {
	base
	cfg    HTTPConfig
	server *http.Server
	log    *slog.Logger
}

// NewHTTPAdapter constructs an HTTPAdapter publishing on b.
func NewHTTPAdapter(cfg HTTPConfig, b *bus.Bus, log *slog.Logger) *HTTPAdapter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	a := &HTTPAdapter{cfg: cfg, log: log.With("adapter", cfg.Name, "protocol", "HTTP")}
	a.base = base{name: cfg.Name, protocol: "HTTP", sourceID: cfg.SourceID, bus: b, autoParse: cfg.AutoParse}
	if cfg.Schema != nil {
		a.base.parser = frame.NewParser(cfg.Schema)
	}
	return a
}

func (a *HTTPAdapter) Start() error {
	if err := a.transitionStart(); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.HandleFunc(a.cfg.Endpoint, a.handle).Methods(a.cfg.Method)

	addr := fmt.Sprintf("%s:%d", a.cfg.ListenAddress, a.cfg.ListenPort)
	a.server = &http.Server{Addr: addr, Handler: router}
	a.state.Store(StateRunning)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http adapter stopped unexpectedly", "error", err)
		}
	}()
	a.log.Info("http adapter started", "address", addr, "endpoint", a.cfg.Endpoint)
	return nil
}

func (a *HTTPAdapter) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.stats.errors.Add(1)
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	a.publishReceived(r.RemoteAddr, body)
	w.WriteHeader(http.StatusOK)
}

func (a *HTTPAdapter) Stop() error {
	if err := a.transitionStop(); err != nil {
		return err
	}
	if a.server != nil {
		a.server.Shutdown(context.Background())
	}
	a.state.Store(StateStopped)
	a.log.Info("http adapter stopped")
	return nil
}

func (a *HTTPAdapter) Restart() error {
	if err := a.Stop(); err != nil {
		return err
	}
	return a.Start()
}
