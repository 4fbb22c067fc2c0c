package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds the broker settings for the MQTT bus adapter.
type MQTTConfig struct {
	// BrokerURL, e.g. "tcp://homeassistant.local:1883".
	BrokerURL string `yaml:"broker_url"`

	// ClientID identifies this process to the broker.
	ClientID string `yaml:"client_id"`

	// TopicPrefix is prepended to every event topic. Events of type T are
	// expected on "<prefix>/events/<T>" with a JSON object payload.
	TopicPrefix string `yaml:"topic_prefix"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTT adapts an MQTT broker to the Bus interface. The home-automation
// bridge publishes refresh, state-change, and circuit-control events as
// JSON objects on per-type topics.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
}

// NewMQTT creates an MQTT bus for cfg. The connection is not opened until
// Connect.
func NewMQTT(cfg MQTTConfig) *MQTT {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	return &MQTT{cfg: cfg, client: mqtt.NewClient(opts)}
}

// Connect opens the broker connection, honoring ctx cancellation while the
// handshake is in flight.
func (b *MQTT) Connect(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", b.cfg.BrokerURL, err)
	}
	slog.Info("mqtt bus connected", "broker", b.cfg.BrokerURL, "client_id", b.cfg.ClientID)
	return nil
}

// Subscribe registers h on the topic for eventType. Each delivery is
// decoded from JSON and handed to h on its own goroutine so a slow handler
// never blocks the broker's delivery loop.
func (b *MQTT) Subscribe(eventType string, h Handler) (UnsubscribeFunc, error) {
	topic := topicFor(b.cfg.TopicPrefix, eventType)

	token := b.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var data map[string]any
		if err := json.Unmarshal(msg.Payload(), &data); err != nil {
			slog.Warn("dropping undecodable event payload",
				"topic", msg.Topic(),
				"error", err,
			)
			return
		}
		go h(context.Background(), data)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	slog.Debug("subscribed", "topic", topic)

	return func() error {
		t := b.client.Unsubscribe(topic)
		t.Wait()
		if err := t.Error(); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", topic, err)
		}
		return nil
	}, nil
}

// Disconnect closes the broker connection, allowing 250ms for in-flight
// publishes to drain.
func (b *MQTT) Disconnect() {
	b.client.Disconnect(250)
	slog.Info("mqtt bus disconnected")
}

// topicFor builds the topic carrying events of the given type.
func topicFor(prefix, eventType string) string {
	if prefix == "" {
		return "events/" + eventType
	}
	return prefix + "/events/" + eventType
}
