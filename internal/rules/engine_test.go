package rules

import (
	"testing"

	"github.com/ocx/gateway/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteMessage_TemperatureThreshold(t *testing.T) {
	e := New(nil, nil)
	e.AddRule(&Rule{
		ID:              "r1",
		Name:            "hot",
		Priority:        10,
		IsActive:        true,
		Conditions:      []Condition{{FieldPath: "parsed_data.temperature", Operator: OpGreaterThan, Value: 30.0}},
		LogicalOperator: LogicalAND,
		TargetSystemIDs: []string{"sink-a"},
	})

	hot := map[string]any{"parsed_data": map[string]any{"temperature": 35.0}}
	decision := e.RouteMessage(hot)
	assert.Equal(t, []string{"sink-a"}, decision.TargetSystemIDs)
	require.Len(t, decision.MatchedRules, 1)
	assert.Equal(t, "r1", decision.MatchedRules[0].RuleID)

	cold := map[string]any{"parsed_data": map[string]any{"temperature": 10.0}}
	decision = e.RouteMessage(cold)
	assert.Empty(t, decision.TargetSystemIDs)
}

func TestAddRule_PrioritySortsDescendingStable(t *testing.T) {
	e := New(nil, nil)
	e.AddRule(&Rule{ID: "low-a", Priority: 1, IsActive: true})
	e.AddRule(&Rule{ID: "high", Priority: 10, IsActive: true})
	e.AddRule(&Rule{ID: "low-b", Priority: 1, IsActive: true})

	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"high", "low-a", "low-b"}, ids)
}

func TestMatchesSourceConfig_ProtocolAndSourceIDPrefilter(t *testing.T) {
	rule := &Rule{
		SourceConfig: SourceConfig{Protocols: []string{"udp"}, SourceIDs: []string{"sensor-1"}},
	}
	assert.True(t, matchesSourceConfig(rule.SourceConfig, map[string]any{
		"source_protocol": "UDP", "source_id": "sensor-1",
	}))
	assert.False(t, matchesSourceConfig(rule.SourceConfig, map[string]any{
		"source_protocol": "TCP", "source_id": "sensor-1",
	}))
	assert.False(t, matchesSourceConfig(rule.SourceConfig, map[string]any{
		"source_protocol": "UDP", "source_id": "sensor-2",
	}))
}

func TestMatchesSourceConfig_PatternGlobOnRawText(t *testing.T) {
	cfg := SourceConfig{Pattern: "sensor-*"}
	assert.True(t, matchesSourceConfig(cfg, map[string]any{"raw_text": "sensor-42"}))
	assert.False(t, matchesSourceConfig(cfg, map[string]any{"raw_text": "actuator-42"}))
}

func TestEvaluateCondition_InAndContains(t *testing.T) {
	data := map[string]any{"parsed_data": map[string]any{"zone": "north", "tags": []any{"a", "b"}}}

	assert.True(t, evaluateCondition(Condition{
		FieldPath: "parsed_data.zone", Operator: OpIn, Value: []any{"north", "south"},
	}, data))
	assert.False(t, evaluateCondition(Condition{
		FieldPath: "parsed_data.zone", Operator: OpNotIn, Value: []any{"north", "south"},
	}, data))
	assert.True(t, evaluateCondition(Condition{
		FieldPath: "parsed_data.tags", Operator: OpContains, Value: "a",
	}, data))
}

func TestEvaluateCondition_MissingFieldPathIsFalse(t *testing.T) {
	data := map[string]any{"parsed_data": map[string]any{}}
	assert.False(t, evaluateCondition(Condition{
		FieldPath: "parsed_data.missing", Operator: OpEqual, Value: 1.0,
	}, data))
}

func TestRouteMessage_DeduplicatesTargetsAcrossRules(t *testing.T) {
	e := New(nil, nil)
	e.AddRule(&Rule{ID: "a", Priority: 2, IsActive: true, TargetSystemIDs: []string{"sink-a", "sink-b"}})
	e.AddRule(&Rule{ID: "b", Priority: 1, IsActive: true, TargetSystemIDs: []string{"sink-b", "sink-c"}})

	decision := e.RouteMessage(map[string]any{})
	assert.Equal(t, []string{"sink-a", "sink-b", "sink-c"}, decision.TargetSystemIDs)
}

func TestStartAutoRouting_PublishesRoutingDecided(t *testing.T) {
	b := bus.New()
	e := New(b, nil)
	e.AddRule(&Rule{ID: "r", Priority: 1, IsActive: true, TargetSystemIDs: []string{"sink"}})

	var received map[string]any
	b.Subscribe(TopicRoutingDecided, func(payload any, topic, source string) {
		received, _ = payload.(map[string]any)
	})

	e.StartAutoRouting()
	b.Publish(TopicDataParsed, map[string]any{"message_id": "m1"}, "test")

	require.NotNil(t, received)
	assert.Equal(t, []string{"sink"}, received["target_system_ids"])
}

func TestInactiveRuleNeverMatches(t *testing.T) {
	e := New(nil, nil)
	e.AddRule(&Rule{ID: "r", Priority: 1, IsActive: false, TargetSystemIDs: []string{"sink"}})
	decision := e.RouteMessage(map[string]any{})
	assert.Empty(t, decision.TargetSystemIDs)
}
