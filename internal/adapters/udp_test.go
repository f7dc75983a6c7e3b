package adapters

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gateway/internal/bus"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestUDPAdapter_LifecycleAndReceive(t *testing.T) {
	b := bus.New()
	port := freePort(t)

	a := NewUDPAdapter(UDPConfig{
		Name: "udp-test", SourceID: "sensor-1", ListenAddress: "127.0.0.1", ListenPort: port,
	}, b, nil)

	assert.Equal(t, StateNew, a.State())
	require.NoError(t, a.Start())
	assert.Equal(t, StateRunning, a.State())

	received := make(chan map[string]any, 1)
	b.Subscribe(bus.TopicUDPReceived, func(payload any, topic, source string) {
		m, _ := payload.(map[string]any)
		received <- m
	})

	conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.Equal(t, "UDP", m["source_protocol"])
		assert.Equal(t, "sensor-1", m["source_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for UDP_RECEIVED")
	}

	require.NoError(t, a.Stop())
	assert.Equal(t, StateStopped, a.State())
}

func TestUDPAdapter_StartWhileRunningFails(t *testing.T) {
	b := bus.New()
	port := freePort(t)
	a := NewUDPAdapter(UDPConfig{Name: "udp-dup", ListenAddress: "127.0.0.1", ListenPort: port}, b, nil)

	require.NoError(t, a.Start())
	defer a.Stop()

	assert.Error(t, a.Start())
}
