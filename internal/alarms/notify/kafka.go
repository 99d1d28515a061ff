package notify

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// MessageWriter writes Kafka messages. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes the JSON alert to a topic keyed by fault type.
type KafkaChannel struct {
	writer MessageWriter
}

// NewKafkaChannel constructs a synchronous writer for the topic.
func NewKafkaChannel(brokers []string, topic string) (*KafkaChannel, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka channel: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka channel: empty topic")
	}
	return NewKafkaChannelWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	})
}

// NewKafkaChannelWithWriter constructs a channel over an existing writer.
func NewKafkaChannelWithWriter(writer MessageWriter) (*KafkaChannel, error) {
	if writer == nil {
		return nil, errors.New("kafka channel: nil writer")
	}
	return &KafkaChannel{writer: writer}, nil
}

// Name implements Channel.
func (k *KafkaChannel) Name() string { return "kafka" }

// Send implements Channel.
func (k *KafkaChannel) Send(ctx context.Context, msg Message) error {
	if k == nil || k.writer == nil {
		return errors.New("kafka channel: nil writer")
	}
	value := msg.Payload
	if len(value) == 0 {
		value = []byte(msg.Text)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.Key), Value: value})
}

// Close releases the writer.
func (k *KafkaChannel) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
