package forwarders

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"

	"github.com/ocx/gateway/internal/gwerrors"
)

// MQTTForwarder publishes payloads to a topic at a configured QoS, per
// spec.md §4.7: "MQTT: publish to configured topic at configured QoS;
// retained flag from config."
type MQTTForwarder struct {
	BrokerAddr string
	Topic      string
	QoS        byte
	Retain     bool
	cfg        Config

	client *paho.Client
}

// NewMQTTForwarder builds a forwarder publishing to topic on the broker
// at brokerAddr (host:port).
func NewMQTTForwarder(brokerAddr, topic string, qos byte, retain bool, cfg Config) *MQTTForwarder {
	return &MQTTForwarder{BrokerAddr: brokerAddr, Topic: topic, QoS: qos, Retain: retain, cfg: cfg}
}

// Start dials the broker and completes the MQTT CONNECT handshake.
func (f *MQTTForwarder) Start() error {
	conn, err := net.Dial("tcp", f.BrokerAddr)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "mqtt dial failed", err)
	}
	f.client = paho.NewClient(paho.ClientConfig{Conn: conn})

	_, err = f.client.Connect(context.Background(), &paho.Connect{
		KeepAlive:  30,
		CleanStart: true,
		ClientID:   "ocx-gateway-forwarder",
	})
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "mqtt connect failed", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (f *MQTTForwarder) Stop() error {
	if f.client == nil {
		return nil
	}
	return f.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

// Forward publishes payload as JSON with retry.
func (f *MQTTForwarder) Forward(ctx context.Context, payload map[string]any) (Result, error) {
	maxRetries := f.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return withRetry(ctx, maxRetries, func(ctx context.Context, n int) (Result, error) {
		return f.attempt(ctx, payload)
	})
}

func (f *MQTTForwarder) attempt(ctx context.Context, payload map[string]any) (Result, error) {
	if f.client == nil {
		return Result{Status: StatusFailure}, gwerrors.New(gwerrors.KindForward, gwerrors.CodeConnection, "mqtt client not started")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeRemote4xx, "payload marshal failed", err)
	}

	_, err = f.client.Publish(ctx, &paho.Publish{
		Topic:   f.Topic,
		QoS:     f.QoS,
		Retain:  f.Retain,
		Payload: body,
	})
	if err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeTimeout,
			fmt.Sprintf("mqtt publish to %q failed", f.Topic), err)
	}
	return Result{Status: StatusSuccess}, nil
}
