package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/forwarders"
	"github.com/ocx/gateway/internal/frame"
	"github.com/ocx/gateway/internal/rules"
	"github.com/ocx/gateway/internal/transform"
)

type recordingForwarder struct {
	forwarded []map[string]any
}

func (f *recordingForwarder) Start() error { return nil }
func (f *recordingForwarder) Stop() error  { return nil }
func (f *recordingForwarder) Forward(ctx context.Context, payload map[string]any) (forwarders.Result, error) {
	f.forwarded = append(f.forwarded, payload)
	return forwarders.Result{Status: forwarders.StatusSuccess}, nil
}

func temperatureSchema() *frame.Schema {
	return &frame.Schema{
		Name:        "temp",
		FrameType:   frame.FrameFixed,
		TotalLength: 4,
		Fields: []frame.Field{
			{Name: "temperature", Offset: 0, Length: 4, DataType: frame.TypeFloat32, ByteOrder: frame.LittleEndian},
		},
	}
}

func TestProcessMessage_EndToEnd_TemperatureRouting(t *testing.T) {
	b := bus.New()
	engine := rules.New(b, nil)
	engine.AddRule(&rules.Rule{
		ID:              "hot",
		Priority:        1,
		IsActive:        true,
		Conditions:      []rules.Condition{{FieldPath: "parsed_data.temperature", Operator: rules.OpGreaterThan, Value: 30.0}},
		LogicalOperator: rules.LogicalAND,
		TargetSystemIDs: []string{"sink"},
	})

	p := New(b, engine, nil, nil, nil)
	fwd := &recordingForwarder{}
	require.NoError(t, p.RegisterTarget("sink", transform.Config{
		FieldMapping: map[string]string{"parsed_data.temperature": "temp"},
	}, fwd))

	schema := temperatureSchema()
	p.RegisterSchema("sensor-1", schema)

	raw, err := frame.Encode(schema, map[string]any{"temperature": 35.0})
	require.NoError(t, err)

	result := p.ProcessMessage(raw, "sensor-1", map[string]any{"source_id": "sensor-1", "source_protocol": "UDP"})
	assert.True(t, result.Success)
	assert.Equal(t, StageComplete, result.Stage)
	require.Len(t, fwd.forwarded, 1)
	assert.InDelta(t, 35.0, fwd.forwarded[0]["temp"].(float64), 1e-5)
}

func TestProcessMessage_ShortFrame_ReturnsParseStage(t *testing.T) {
	b := bus.New()
	engine := rules.New(b, nil)
	p := New(b, engine, nil, nil, nil)
	p.RegisterSchema("sensor-1", temperatureSchema())

	result := p.ProcessMessage([]byte{0x01}, "sensor-1", map[string]any{"source_id": "sensor-1"})
	assert.False(t, result.Success)
	assert.Equal(t, StageParse, result.Stage)
}

func TestProcessMessage_NoMatchingRule_CompletesWithoutForward(t *testing.T) {
	b := bus.New()
	engine := rules.New(b, nil)
	p := New(b, engine, nil, nil, nil)

	result := p.ProcessMessage([]byte("x"), "", map[string]any{"source_id": "unmatched"})
	assert.True(t, result.Success)
	assert.Equal(t, StageComplete, result.Stage)
}

func TestRegisterTarget_ReplacesAndStopsPriorForwarder(t *testing.T) {
	b := bus.New()
	engine := rules.New(b, nil)
	p := New(b, engine, nil, nil, nil)

	first := &recordingForwarder{}
	second := &recordingForwarder{}
	require.NoError(t, p.RegisterTarget("sink", transform.Config{}, first))
	require.NoError(t, p.RegisterTarget("sink", transform.Config{}, second))

	p.mu.RLock()
	bound := p.targets["sink"].forwarder
	p.mu.RUnlock()
	assert.Same(t, second, bound)
}
