package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sportscarhub/storefront/internal/domain"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Publisher receives decoded events; *notify.Hub satisfies it.
type Publisher interface {
	Publish(event domain.OrderEvent)
}

// Consumer relays order events from Kafka into the local hub so every
// instance's watchers see changes committed by any instance.
type Consumer struct {
	reader MessageReader
	out    Publisher
	log    zerolog.Logger
}

// NewConsumer reads the topic under a per-instance group id, so each
// instance receives every event.
func NewConsumer(out Publisher, log zerolog.Logger, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(reader, out, log)
}

func newConsumer(reader MessageReader, out Publisher, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		out:    out,
		log:    log.With().Str("component", "consumer").Logger(),
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !c.processMessage(ctx) {
			return
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error().Err(err).Msg("error closing kafka reader")
	}
}

// processMessage handles one message and reports whether the loop should
// continue.
func (c *Consumer) processMessage(ctx context.Context) bool {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
			return false
		}
		c.log.Error().Err(err).Msg("error reading message")
		return true
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn().Err(err).Str("key", string(m.Key)).Msg("error parsing message")
		return true
	}
	if event.OrderID == "" || event.OwnerID == "" {
		c.log.Warn().Str("key", string(m.Key)).Msg("order event without order or owner, skipping")
		return true
	}

	c.out.Publish(event)
	return true
}
