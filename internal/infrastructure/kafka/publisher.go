package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/events"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher streams events to a single Kafka topic, keyed by branch so a
// branch's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewWriter returns an async writer: WriteMessages only enqueues, so request
// paths never wait on the batch timeout. Delivery failures surface through
// Completion.
func NewWriter(cfg config.KafkaConfig, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   completionLogger(logger),
	}
}

func completionLogger(logger *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			logger.Error("delivering kafka event",
				zap.String("topic", m.Topic),
				zap.ByteString("key", m.Key),
				zap.String("eventType", eventType(m)),
				zap.Error(err),
			)
		}
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event-type" {
			return string(h.Value)
		}
	}
	return ""
}

func NewPublisher(writer MessageWriter, logger *zap.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("encoding kafka event", zap.String("topic", topic), zap.Error(err))
		return
	}

	key := ""
	if s, ok := payload.(events.Scoped); ok {
		key = s.Branch()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(topic)},
		},
		Time: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("publishing kafka event", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
