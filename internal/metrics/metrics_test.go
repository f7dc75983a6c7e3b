package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_CountersObserveLabeledIncrements(t *testing.T) {
	m := New()

	m.MessagesReceived.WithLabelValues("UDP", "plc-1").Inc()
	m.RulesMatched.WithLabelValues("rule-high-temp").Inc()
	m.RulesMatched.WithLabelValues("rule-high-temp").Inc()
	m.ForwardTotal.WithLabelValues("scada-historian", "success").Inc()
	m.ForwardDuration.WithLabelValues("scada-historian").Observe(0.05)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesReceived.WithLabelValues("UDP", "plc-1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RulesMatched.WithLabelValues("rule-high-temp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ForwardTotal.WithLabelValues("scada-historian", "success")))
}
