package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes to an MQTT broker. pahomqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	BrokerURL   string        `mapstructure:"broker_url" yaml:"broker_url"`
	ClientID    string        `mapstructure:"client_id" yaml:"client_id"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte          `mapstructure:"qos" yaml:"qos"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MQTTChannel publishes the JSON alert under <prefix>/alert/<fault type>.
type MQTTChannel struct {
	client  Publisher
	closer  func()
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTTChannel connects to the broker. Connection failures are returned;
// the client reconnects on its own afterwards.
func NewMQTTChannel(cfg MQTTConfig) (*MQTTChannel, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt channel: empty broker url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hvac-insight"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errors.New("mqtt channel: connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt channel: connect: %w", err)
	}
	channel, err := NewMQTTChannelWithPublisher(client, cfg.TopicPrefix, cfg.QoS, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	channel.closer = func() { client.Disconnect(250) }
	return channel, nil
}

// NewMQTTChannelWithPublisher constructs a channel over an existing publisher.
func NewMQTTChannelWithPublisher(client Publisher, prefix string, qos byte, timeout time.Duration) (*MQTTChannel, error) {
	if client == nil {
		return nil, errors.New("mqtt channel: nil client")
	}
	if prefix == "" {
		prefix = "hvac"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTChannel{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos, timeout: timeout}, nil
}

// Name implements Channel.
func (m *MQTTChannel) Name() string { return "mqtt" }

// Topic returns the topic a message is published to.
func (m *MQTTChannel) Topic(msg Message) string {
	key := msg.Key
	if key == "" {
		key = "unknown"
	}
	return m.prefix + "/alert/" + key
}

// Send implements Channel.
func (m *MQTTChannel) Send(ctx context.Context, msg Message) error {
	if m == nil || m.client == nil {
		return errors.New("mqtt channel: nil client")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := msg.Payload
	if len(payload) == 0 {
		payload = []byte(msg.Text)
	}
	topic := m.Topic(msg)
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt channel: publish to %s timed out", topic)
	}
	return token.Error()
}

// Close disconnects a client created by NewMQTTChannel.
func (m *MQTTChannel) Close() {
	if m != nil && m.closer != nil {
		m.closer()
	}
}
