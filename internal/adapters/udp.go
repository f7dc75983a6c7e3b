package adapters

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// UDPConfig configures a UDPAdapter, per spec.md §4.3: "bind to
// listen_address:listen_port, one datagram = one message; buffer size
// configurable; no connection state."
type UDPConfig struct {
	Name          string
	SourceID      string
	ListenAddress string
	ListenPort    int
	BufferSize    int
	AutoParse     bool
	Schema        *frame.Schema
}

// UDPAdapter receives one message per datagram.
type UDPAdapter struct {
	base
	cfg  UDPConfig
	conn *net.UDPConn
	log  *slog.Logger
	done chan struct{}
}

// NewUDPAdapter constructs a UDPAdapter publishing on b.
func NewUDPAdapter(cfg UDPConfig, b *bus.Bus, log *slog.Logger) *UDPAdapter {
	if log == nil {
		log = slog.Default()
	}
	a := &UDPAdapter{cfg: cfg, log: log.With("adapter", cfg.Name, "protocol", "UDP")}
	a.base = base{name: cfg.Name, protocol: "UDP", sourceID: cfg.SourceID, bus: b, autoParse: cfg.AutoParse}
	if cfg.Schema != nil {
		a.base.parser = frame.NewParser(cfg.Schema)
	}
	return a
}

func (a *UDPAdapter) Start() error {
	if err := a.transitionStart(); err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.ParseIP(a.cfg.ListenAddress), Port: a.cfg.ListenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		a.state.Store(StateStopped)
		return fmt.Errorf("udp listen: %w", err)
	}
	a.conn = conn
	a.done = make(chan struct{})
	a.state.Store(StateRunning)

	go a.receiveLoop()
	a.log.Info("udp adapter started", "address", a.cfg.ListenAddress, "port", a.cfg.ListenPort)
	return nil
}

func (a *UDPAdapter) receiveLoop() {
	bufSize := a.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 65507
	}
	buf := make([]byte, bufSize)

	for {
		select {
		case <-a.done:
			return
		default:
		}

		n, peer, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if a.state.Load() != StateRunning {
				return
			}
			a.stats.errors.Add(1)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		a.publishReceived(peer.String(), raw)
	}
}

func (a *UDPAdapter) Stop() error {
	if err := a.transitionStop(); err != nil {
		return err
	}
	if a.done != nil {
		close(a.done)
	}
	if a.conn != nil {
		a.conn.Close()
	}
	a.state.Store(StateStopped)
	a.log.Info("udp adapter stopped")
	return nil
}

func (a *UDPAdapter) Restart() error {
	if err := a.Stop(); err != nil {
		return err
	}
	return a.Start()
}
