package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/eclipse/paho.golang/paho"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/frame"
)

// MQTTConfig configures an MQTTAdapter, per spec.md §4.3: "subscribes to
// configured topic filters at the configured QoS; each received publish
// is one message."
type MQTTConfig struct {
	Name       string
	SourceID   string
	BrokerAddr string
	Topics     []string
	QoS        byte
	AutoParse  bool
	Schema     *frame.Schema
}

// MQTTAdapter subscribes to topic filters and emits one message per
// received publish.
type MQTTAdapter struct {
	base
	cfg    MQTTConfig
	client *paho.Client
	log    *slog.Logger
}

// NewMQTTAdapter constructs an MQTTAdapter publishing on b.
func NewMQTTAdapter(cfg MQTTConfig, b *bus.Bus, log *slog.Logger) *MQTTAdapter {
	if log == nil {
		log = slog.Default()
	}
	a := &MQTTAdapter{cfg: cfg, log: log.With("adapter", cfg.Name, "protocol", "MQTT")}
	a.base = base{name: cfg.Name, protocol: "MQTT", sourceID: cfg.SourceID, bus: b, autoParse: cfg.AutoParse}
	if cfg.Schema != nil {
		a.base.parser = frame.NewParser(cfg.Schema)
	}
	return a
}

func (a *MQTTAdapter) Start() error {
	if err := a.transitionStart(); err != nil {
		return err
	}

	conn, err := net.Dial("tcp", a.cfg.BrokerAddr)
	if err != nil {
		a.state.Store(StateStopped)
		return fmt.Errorf("mqtt dial: %w", err)
	}

	a.client = paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				a.publishReceived(pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
	})

	if _, err := a.client.Connect(context.Background(), &paho.Connect{
		KeepAlive:  30,
		CleanStart: true,
		ClientID:   "ocx-gateway-" + a.cfg.Name,
	}); err != nil {
		a.state.Store(StateStopped)
		return fmt.Errorf("mqtt connect: %w", err)
	}

	subs := make([]paho.SubscribeOptions, 0, len(a.cfg.Topics))
	for _, topic := range a.cfg.Topics {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: a.cfg.QoS})
	}
	if len(subs) > 0 {
		if _, err := a.client.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: subs}); err != nil {
			a.state.Store(StateStopped)
			return fmt.Errorf("mqtt subscribe: %w", err)
		}
	}

	a.state.Store(StateRunning)
	a.log.Info("mqtt adapter started", "broker", a.cfg.BrokerAddr, "topics", a.cfg.Topics)
	return nil
}

func (a *MQTTAdapter) Stop() error {
	if err := a.transitionStop(); err != nil {
		return err
	}
	if a.client != nil {
		a.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	a.state.Store(StateStopped)
	a.log.Info("mqtt adapter stopped")
	return nil
}

func (a *MQTTAdapter) Restart() error {
	if err := a.Stop(); err != nil {
		return err
	}
	return a.Start()
}
