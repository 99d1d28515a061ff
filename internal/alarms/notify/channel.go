package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Message is rendered notification content.
type Message struct {
	Subject string
	Text    string
	HTML    string
	// Key groups messages on keyed transports (Kafka key, MQTT topic suffix).
	Key string
	// Payload is the JSON form of the alert for machine consumers.
	Payload []byte
}

// Channel delivers rendered content.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogChannel writes alerts to the logger. It is the fallback when no transport is configured.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel constructs a log channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.With(zap.String("component", "alert-log"))}
}

// Name implements Channel.
func (c *LogChannel) Name() string { return "log" }

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, msg Message) error {
	if c == nil {
		return errors.New("log channel: nil")
	}
	c.logger.Info("alert raised",
		zap.String("key", msg.Key),
		zap.String("subject", msg.Subject),
		zap.String("content", msg.Text),
	)
	return nil
}
