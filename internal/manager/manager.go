// Package manager implements the Gateway Manager: lifecycle of adapters
// and the pipeline, and registration of schemas, routing rules and
// target systems.
package manager

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ocx/gateway/internal/adapters"
	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/forwarders"
	"github.com/ocx/gateway/internal/frame"
	"github.com/ocx/gateway/internal/pipeline"
	"github.com/ocx/gateway/internal/rules"
	"github.com/ocx/gateway/internal/transform"
)

// Manager owns adapters and the pipeline, per spec.md §4.9.
type Manager struct {
	bus      *bus.Bus
	routing  *rules.Engine
	pipeline *pipeline.Pipeline
	log      *slog.Logger

	mu       sync.RWMutex
	adapters []adapters.Adapter // registration order
	running  bool
}

// New constructs a Manager wired to b, routing and pipeline.
func New(b *bus.Bus, routing *rules.Engine, p *pipeline.Pipeline, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{bus: b, routing: routing, pipeline: p, log: log.With("component", "manager")}
}

// Start starts the pipeline, then every registered adapter in
// registration order.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pipeline.Start()

	for _, a := range m.adapters {
		if err := a.Start(); err != nil {
			return fmt.Errorf("start adapter %q: %w", a.Name(), err)
		}
	}
	m.running = true
	m.log.Info("gateway manager started", "adapters", len(m.adapters))
	return nil
}

// Stop stops every adapter in reverse registration order, then the
// pipeline.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for i := len(m.adapters) - 1; i >= 0; i-- {
		if err := m.adapters[i].Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pipeline.Stop()
	m.running = false
	m.log.Info("gateway manager stopped")
	return firstErr
}

// AddAdapter registers a, starting it immediately if the manager is
// already running.
func (m *Manager) AddAdapter(a adapters.Adapter) error {
	m.mu.Lock()
	m.adapters = append(m.adapters, a)
	running := m.running
	m.mu.Unlock()

	if running {
		return a.Start()
	}
	return nil
}

// RemoveAdapter stops and removes the adapter named name.
func (m *Manager) RemoveAdapter(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.adapters {
		if a.Name() == name {
			m.adapters = append(m.adapters[:i], m.adapters[i+1:]...)
			return a.Stop()
		}
	}
	return fmt.Errorf("adapter %q not found", name)
}

// RegisterFrameSchema installs schema for sourceID so the pipeline parses
// future messages from that source.
func (m *Manager) RegisterFrameSchema(sourceID string, schema *frame.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("register schema %q: %w", sourceID, err)
	}
	m.pipeline.RegisterSchema(sourceID, schema)
	return nil
}

// UnregisterFrameSchema removes a previously installed schema.
func (m *Manager) UnregisterFrameSchema(sourceID string) {
	m.pipeline.UnregisterSchema(sourceID)
}

// RegisterRoutingRule installs r, re-sorting the rule list by priority
// descending.
func (m *Manager) RegisterRoutingRule(r *rules.Rule) {
	m.routing.AddRule(r)
}

// UnregisterRoutingRule removes the rule identified by id.
func (m *Manager) UnregisterRoutingRule(id string) {
	m.routing.RemoveRule(id)
}

// ReloadRoutingRule is unregister-then-register, preserving other rules'
// ordering, per spec.md §4.9.
func (m *Manager) ReloadRoutingRule(r *rules.Rule) {
	m.routing.Reload(r)
}

// RegisterTargetSystem installs a target's transform config and
// forwarder instance.
func (m *Manager) RegisterTargetSystem(id string, cfg transform.Config, fwd forwarders.Forwarder) error {
	return m.pipeline.RegisterTarget(id, cfg, fwd)
}

// UnregisterTargetSystem stops and removes a target's forwarder.
func (m *Manager) UnregisterTargetSystem(id string) {
	m.pipeline.UnregisterTarget(id)
}

// Status is the manager's aggregate lifecycle report.
type Status struct {
	Running      bool                      `json:"running"`
	AdapterCount int                       `json:"adapter_count"`
	RoutingStats rules.Stats               `json:"routing_stats"`
	Adapters     map[string]adapters.Stats `json:"adapters"`
}

// GetStatus reports the manager's current state.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adapterStats := make(map[string]adapters.Stats, len(m.adapters))
	for _, a := range m.adapters {
		adapterStats[a.Name()] = a.Stats()
	}

	return Status{
		Running:      m.running,
		AdapterCount: len(m.adapters),
		RoutingStats: m.routing.Stats(),
		Adapters:     adapterStats,
	}
}

// GetAdapterStats returns a.Stats() for the adapter named name.
func (m *Manager) GetAdapterStats(name string) (adapters.Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.adapters {
		if a.Name() == name {
			return a.Stats(), true
		}
	}
	return adapters.Stats{}, false
}
