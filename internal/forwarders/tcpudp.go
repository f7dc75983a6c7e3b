package forwarders

import (
	"context"
	"encoding/json"
	"net"

	"github.com/ocx/gateway/internal/frame"
	"github.com/ocx/gateway/internal/gwerrors"
)

// TCPForwarder frame-encodes payloads per a target schema (when bound) and
// writes them to a persistent TCP connection, per spec.md §4.7:
// "TCP/UDP: frame-encode according to the target's schema, if any."
type TCPForwarder struct {
	Addr   string
	Schema *frame.Schema // nil: payload is sent as JSON
	cfg    Config

	conn net.Conn
}

// NewTCPForwarder builds a forwarder dialing addr.
func NewTCPForwarder(addr string, schema *frame.Schema, cfg Config) *TCPForwarder {
	return &TCPForwarder{Addr: addr, Schema: schema, cfg: cfg}
}

func (f *TCPForwarder) Start() error {
	conn, err := net.Dial("tcp", f.Addr)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "tcp dial failed", err)
	}
	f.conn = conn
	return nil
}

func (f *TCPForwarder) Stop() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

func (f *TCPForwarder) Forward(ctx context.Context, payload map[string]any) (Result, error) {
	maxRetries := f.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return withRetry(ctx, maxRetries, func(ctx context.Context, n int) (Result, error) {
		return f.attempt(payload)
	})
}

func (f *TCPForwarder) attempt(payload map[string]any) (Result, error) {
	if f.conn == nil {
		return Result{Status: StatusFailure}, gwerrors.New(gwerrors.KindForward, gwerrors.CodeConnection, "tcp connection not started")
	}

	wire, err := encodeWire(f.Schema, payload)
	if err != nil {
		return Result{Status: StatusFailure}, err
	}

	if _, err := f.conn.Write(wire); err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "tcp write failed", err)
	}
	return Result{Status: StatusSuccess}, nil
}

// UDPForwarder frame-encodes payloads and sends one datagram per message.
type UDPForwarder struct {
	Addr   string
	Schema *frame.Schema
	cfg    Config

	conn net.Conn
}

// NewUDPForwarder builds a forwarder sending datagrams to addr.
func NewUDPForwarder(addr string, schema *frame.Schema, cfg Config) *UDPForwarder {
	return &UDPForwarder{Addr: addr, Schema: schema, cfg: cfg}
}

func (f *UDPForwarder) Start() error {
	conn, err := net.Dial("udp", f.Addr)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "udp dial failed", err)
	}
	f.conn = conn
	return nil
}

func (f *UDPForwarder) Stop() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

func (f *UDPForwarder) Forward(ctx context.Context, payload map[string]any) (Result, error) {
	maxRetries := f.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return withRetry(ctx, maxRetries, func(ctx context.Context, n int) (Result, error) {
		return f.attempt(payload)
	})
}

func (f *UDPForwarder) attempt(payload map[string]any) (Result, error) {
	if f.conn == nil {
		return Result{Status: StatusFailure}, gwerrors.New(gwerrors.KindForward, gwerrors.CodeConnection, "udp connection not started")
	}

	wire, err := encodeWire(f.Schema, payload)
	if err != nil {
		return Result{Status: StatusFailure}, err
	}

	if _, err := f.conn.Write(wire); err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "udp write failed", err)
	}
	return Result{Status: StatusSuccess}, nil
}

// encodeWire frame-encodes payload against schema, or JSON-encodes it when
// no schema is bound.
func encodeWire(schema *frame.Schema, payload map[string]any) ([]byte, error) {
	if schema == nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeRemote4xx, "payload marshal failed", err)
		}
		return body, nil
	}
	wire, err := frame.Encode(schema, payload)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeRemote4xx, "frame encode failed", err)
	}
	return wire, nil
}
