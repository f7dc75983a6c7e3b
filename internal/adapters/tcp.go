package adapters

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// TCPConfig configures a TCPAdapter, per spec.md §4.3: "accept loop;
// per-connection framing is driven by the bound schema's frame_type;
// partial reads accumulate until one frame is emitted."
type TCPConfig struct {
	Name          string
	SourceID      string
	ListenAddress string
	ListenPort    int
	AutoParse     bool
	Schema        *frame.Schema // required: defines per-connection framing
}

// TCPAdapter accepts connections and emits one message per framed read.
type TCPAdapter struct {
	base
	cfg      TCPConfig
	listener net.Listener
	log      *slog.Logger
	done     chan struct{}
}

// NewTCPAdapter constructs a TCPAdapter publishing on b.
func NewTCPAdapter(cfg TCPConfig, b *bus.Bus, log *slog.Logger) *TCPAdapter {
	if log == nil {
		log = slog.Default()
	}
	a := &TCPAdapter{cfg: cfg, log: log.With("adapter", cfg.Name, "protocol", "TCP")}
	a.base = base{name: cfg.Name, protocol: "TCP", sourceID: cfg.SourceID, bus: b, autoParse: cfg.AutoParse}
	if cfg.Schema != nil {
		a.base.parser = frame.NewParser(cfg.Schema)
	}
	return a
}

func (a *TCPAdapter) Start() error {
	if err := a.transitionStart(); err != nil {
		return err
	}
	if a.cfg.Schema == nil {
		a.state.Store(StateStopped)
		return errors.New("tcp adapter requires a bound frame schema")
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.ListenAddress, a.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.state.Store(StateStopped)
		return fmt.Errorf("tcp listen: %w", err)
	}
	a.listener = ln
	a.done = make(chan struct{})
	a.state.Store(StateRunning)

	go a.acceptLoop()
	a.log.Info("tcp adapter started", "address", addr)
	return nil
}

func (a *TCPAdapter) acceptLoop() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.done:
				return
			default:
				a.stats.errors.Add(1)
				continue
			}
		}
		go a.handleConn(conn)
	}
}

func (a *TCPAdapter) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	sr := frame.NewStreamReader(conn, a.cfg.Schema)
	for {
		select {
		case <-a.done:
			return
		default:
		}

		raw, err := sr.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.stats.errors.Add(1)
			}
			return
		}
		a.publishReceived(peer, raw)
	}
}

func (a *TCPAdapter) Stop() error {
	if err := a.transitionStop(); err != nil {
		return err
	}
	if a.done != nil {
		close(a.done)
	}
	if a.listener != nil {
		a.listener.Close()
	}
	a.state.Store(StateStopped)
	a.log.Info("tcp adapter stopped")
	return nil
}

func (a *TCPAdapter) Restart() error {
	if err := a.Stop(); err != nil {
		return err
	}
	return a.Start()
}
