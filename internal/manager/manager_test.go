package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gateway/internal/adapters"
	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/forwarders"
	"github.com/ocx/gateway/internal/pipeline"
	"github.com/ocx/gateway/internal/rules"
	"github.com/ocx/gateway/internal/transform"
)

type fakeAdapter struct {
	name    string
	started bool
	stopped bool
}

func (f *fakeAdapter) Name() string            { return f.name }
func (f *fakeAdapter) Protocol() string        { return "FAKE" }
func (f *fakeAdapter) Start() error             { f.started = true; return nil }
func (f *fakeAdapter) Stop() error              { f.stopped = true; return nil }
func (f *fakeAdapter) Restart() error           { return nil }
func (f *fakeAdapter) State() adapters.State    { return adapters.StateRunning }
func (f *fakeAdapter) Stats() adapters.Stats    { return adapters.Stats{} }

type noopForwarder struct{}

func (noopForwarder) Start() error { return nil }
func (noopForwarder) Stop() error  { return nil }
func (noopForwarder) Forward(ctx context.Context, payload map[string]any) (forwarders.Result, error) {
	return forwarders.Result{Status: forwarders.StatusSuccess}, nil
}

func newTestManager() *Manager {
	b := bus.New()
	engine := rules.New(b, nil)
	p := pipeline.New(b, engine, nil, nil, nil)
	return New(b, engine, p, nil)
}

func TestManager_StartStartsAdaptersInOrder(t *testing.T) {
	m := newTestManager()
	a1 := &fakeAdapter{name: "a1"}
	a2 := &fakeAdapter{name: "a2"}
	require.NoError(t, m.AddAdapter(a1))
	require.NoError(t, m.AddAdapter(a2))

	require.NoError(t, m.Start())
	assert.True(t, a1.started)
	assert.True(t, a2.started)

	require.NoError(t, m.Stop())
	assert.True(t, a1.stopped)
	assert.True(t, a2.stopped)
}

func TestManager_AddAdapterWhileRunningStartsImmediately(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.Start())

	a := &fakeAdapter{name: "late"}
	require.NoError(t, m.AddAdapter(a))
	assert.True(t, a.started)
}

func TestManager_RegisterTargetSystemAndGetStatus(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.RegisterTargetSystem("sink", transform.Config{}, noopForwarder{}))

	status := m.GetStatus()
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.AdapterCount)
}

func TestReloadRoutingRule_PreservesOtherRuleOrder(t *testing.T) {
	m := newTestManager()
	m.RegisterRoutingRule(&rules.Rule{ID: "a", Priority: 5, IsActive: true})
	m.RegisterRoutingRule(&rules.Rule{ID: "b", Priority: 3, IsActive: true})

	m.ReloadRoutingRule(&rules.Rule{ID: "a", Priority: 1, IsActive: true})

	status := m.GetStatus()
	assert.Equal(t, 2, status.RoutingStats.TotalRules)
}
