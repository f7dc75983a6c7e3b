package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/gateway/internal/bus"
)

func TestMQTTAdapter_StartFailsWhenBrokerUnreachable(t *testing.T) {
	b := bus.New()
	a := NewMQTTAdapter(MQTTConfig{
		Name: "mqtt-test", BrokerAddr: "127.0.0.1:1", Topics: []string{"sensors/+/reading"},
	}, b, nil)

	assert.Error(t, a.Start())
	assert.Equal(t, StateStopped, a.State())
}
