package adapters

import (
	"bytes"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gateway/internal/bus"
)

func TestHTTPAdapter_LifecycleAndReceive(t *testing.T) {
	b := bus.New()
	port := freePort(t)

	a := NewHTTPAdapter(HTTPConfig{
		Name: "http-test", SourceID: "telemetry-1", ListenAddress: "127.0.0.1", ListenPort: port,
		Endpoint: "/ingest", Method: http.MethodPost,
	}, b, nil)

	require.NoError(t, a.Start())
	assert.Equal(t, StateRunning, a.State())
	time.Sleep(50 * time.Millisecond)

	received := make(chan map[string]any, 1)
	b.Subscribe(bus.TopicHTTPReceived, func(payload any, topic, source string) {
		m, _ := payload.(map[string]any)
		received <- m
	})

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/ingest"
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{"temp":21.5}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case m := <-received:
		assert.Equal(t, "HTTP", m["source_protocol"])
		assert.Equal(t, "telemetry-1", m["source_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HTTP_RECEIVED")
	}

	require.NoError(t, a.Stop())
	assert.Equal(t, StateStopped, a.State())
}

func TestHTTPAdapter_WrongMethodRejected(t *testing.T) {
	b := bus.New()
	port := freePort(t)

	a := NewHTTPAdapter(HTTPConfig{
		Name: "http-method-test", ListenAddress: "127.0.0.1", ListenPort: port,
		Endpoint: "/ingest", Method: http.MethodPost,
	}, b, nil)
	require.NoError(t, a.Start())
	defer a.Stop()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/ingest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
