package publisher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sportscarhub/storefront/internal/circuitbreaker"
	"github.com/sportscarhub/storefront/internal/repository"
)

const DefaultTopic = "storefront.orders"

// Sink delivers one outbox event. An event is marked processed only after
// Send returns nil.
type Sink interface {
	Send(ctx context.Context, event *repository.OutboxEvent) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// KafkaSink writes events keyed by order id, so every event for one order
// lands on the same partition in commit order.
type KafkaSink struct {
	writer  MessageWriter
	breaker *circuitbreaker.Breaker
}

func NewKafkaSink(writer MessageWriter, breaker *circuitbreaker.Breaker) *KafkaSink {
	return &KafkaSink{writer: writer, breaker: breaker}
}

func (s *KafkaSink) Send(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	}
	if s.breaker == nil {
		return s.writer.WriteMessages(ctx, msg)
	}
	return s.breaker.Do(func() error {
		return s.writer.WriteMessages(ctx, msg)
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink records events in the log and nothing else. It keeps the outbox
// drained when no broker is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, event *repository.OutboxEvent) error {
	s.log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("order_id", event.AggregateId).
		RawJSON("payload", event.Payload).
		Msg("order event")
	return nil
}
