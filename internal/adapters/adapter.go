// Package adapters implements the gateway's protocol ingress adapters:
// UDP, TCP, HTTP, WebSocket and MQTT, sharing a common lifecycle state
// machine and envelope-construction convention.
package adapters

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/envelope"
	"github.com/ocx/gateway/internal/frame"
)

// State is an adapter's lifecycle state, per spec.md §3/§4.3.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Stats are atomic counters updated without a lock, per spec.md §5.
type Stats struct {
	Received int64 `json:"received"`
	Parsed   int64 `json:"parsed"`
	Errors   int64 `json:"errors"`
}

// Adapter is the common capability set every ingress adapter provides.
type Adapter interface {
	Name() string
	Protocol() string
	Start() error
	Stop() error
	Restart() error
	State() State
	Stats() Stats
}

// base holds the fields and lifecycle machinery shared by every adapter
// implementation: a bound bus, an optional parser for auto_parse, atomic
// state and stats.
type base struct {
	name       string
	protocol   string
	sourceID   string
	bus        *bus.Bus
	parser     *frame.Parser
	autoParse  bool

	state State32
	stats statsCounters
}

// State32 is an atomic-backed State.
type State32 struct{ v atomic.Int32 }

func (s *State32) Load() State   { return State(s.v.Load()) }
func (s *State32) Store(v State) { s.v.Store(int32(v)) }
func (s *State32) CAS(old, to State) bool {
	return s.v.CompareAndSwap(int32(old), int32(to))
}

type statsCounters struct {
	received atomic.Int64
	parsed   atomic.Int64
	errors   atomic.Int64
}

func (s *statsCounters) snapshot() Stats {
	return Stats{Received: s.received.Load(), Parsed: s.parsed.Load(), Errors: s.errors.Load()}
}

func (b *base) Name() string     { return b.name }
func (b *base) Protocol() string { return b.protocol }
func (b *base) State() State     { return b.state.Load() }
func (b *base) Stats() Stats     { return b.stats.snapshot() }

// publishReceived builds an envelope for raw bytes from sourceAddress and
// publishes it on the adapter's <PROTO>_RECEIVED topic. When the adapter
// is bound to a schema and configured with auto_parse, it also parses
// inline and publishes DATA_PARSED; a parse failure decorates the
// envelope with parse_error but still emits <PROTO>_RECEIVED.
func (b *base) publishReceived(sourceAddress string, raw []byte) {
	b.stats.received.Add(1)

	env := envelope.New(uuid.NewString(), b.protocol, b.sourceID, sourceAddress)
	env.RawData = raw

	if b.parser != nil && b.autoParse {
		parsed, err := b.parser.Parse(raw)
		if err != nil {
			env.ParseError = err.Error()
			b.stats.errors.Add(1)
		} else {
			env.ParsedData = parsed
		}
	}

	data := env.ToMap()
	topic := bus.ReceivedTopicForProtocol(b.protocol)
	b.bus.Publish(topic, data, b.name)

	if env.ParsedData != nil {
		b.stats.parsed.Add(1)
		b.bus.Publish(bus.TopicDataParsed, data, b.name)
	}
}

// transitionStart moves NEW or STOPPED -> STARTING, returning false (with
// no state change) if the adapter is already RUNNING.
func (b *base) transitionStart() error {
	switch b.state.Load() {
	case StateRunning:
		return fmt.Errorf("adapter %q already running", b.name)
	case StateStarting:
		return fmt.Errorf("adapter %q already starting", b.name)
	}
	b.state.Store(StateStarting)
	return nil
}

func (b *base) transitionStop() error {
	if b.state.Load() == StateStopped {
		return nil
	}
	b.state.Store(StateStopping)
	return nil
}

