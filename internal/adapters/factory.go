package adapters

import (
	"fmt"
	"log/slog"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// Spec describes an adapter to construct, as read from gateway
// configuration. Only the fields relevant to Protocol need be set.
type Spec struct {
	Protocol       string
	Name           string
	SourceID       string
	ListenAddress  string
	ListenPort     int
	BufferSize     int
	Endpoint       string
	Method         string
	Path           string
	MaxConnections int
	BrokerAddr     string
	Topics         []string
	QoS            byte
	AutoParse      bool
	Schema         *frame.Schema
}

// New constructs the Adapter matching spec.Protocol, publishing on b.
func New(spec Spec, b *bus.Bus, log *slog.Logger) (Adapter, error) {
	schema := spec.Schema

	switch spec.Protocol {
	case "UDP":
		return NewUDPAdapter(UDPConfig{
			Name: spec.Name, SourceID: spec.SourceID, ListenAddress: spec.ListenAddress,
			ListenPort: spec.ListenPort, BufferSize: spec.BufferSize, AutoParse: spec.AutoParse, Schema: schema,
		}, b, log), nil
	case "TCP":
		return NewTCPAdapter(TCPConfig{
			Name: spec.Name, SourceID: spec.SourceID, ListenAddress: spec.ListenAddress,
			ListenPort: spec.ListenPort, AutoParse: spec.AutoParse, Schema: schema,
		}, b, log), nil
	case "HTTP":
		return NewHTTPAdapter(HTTPConfig{
			Name: spec.Name, SourceID: spec.SourceID, ListenAddress: spec.ListenAddress,
			ListenPort: spec.ListenPort, Endpoint: spec.Endpoint, Method: spec.Method,
			AutoParse: spec.AutoParse, Schema: schema,
		}, b, log), nil
	case "WEBSOCKET":
		return NewWebSocketAdapter(WebSocketConfig{
			Name: spec.Name, SourceID: spec.SourceID, ListenAddress: spec.ListenAddress,
			ListenPort: spec.ListenPort, Path: spec.Path, MaxConnections: spec.MaxConnections,
			AutoParse: spec.AutoParse, Schema: schema,
		}, b, log), nil
	case "MQTT":
		return NewMQTTAdapter(MQTTConfig{
			Name: spec.Name, SourceID: spec.SourceID, BrokerAddr: spec.BrokerAddr,
			Topics: spec.Topics, QoS: spec.QoS, AutoParse: spec.AutoParse, Schema: schema,
		}, b, log), nil
	default:
		return nil, fmt.Errorf("unknown adapter protocol %q", spec.Protocol)
	}
}
