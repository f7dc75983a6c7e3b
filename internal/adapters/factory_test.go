package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gateway/internal/bus"
)

func TestNew_DispatchesByProtocol(t *testing.T) {
	b := bus.New()

	cases := []struct {
		protocol string
		wantType Adapter
	}{
		{"UDP", &UDPAdapter{}},
		{"TCP", &TCPAdapter{}},
		{"HTTP", &HTTPAdapter{}},
		{"WEBSOCKET", &WebSocketAdapter{}},
		{"MQTT", &MQTTAdapter{}},
	}

	for _, c := range cases {
		a, err := New(Spec{Protocol: c.protocol, Name: "x-" + c.protocol}, b, nil)
		require.NoError(t, err, c.protocol)
		assert.IsType(t, c.wantType, a, c.protocol)
		assert.Equal(t, c.protocol, a.Protocol())
	}
}

func TestNew_UnknownProtocol(t *testing.T) {
	b := bus.New()
	_, err := New(Spec{Protocol: "CARRIER_PIGEON"}, b, nil)
	assert.Error(t, err)
}
