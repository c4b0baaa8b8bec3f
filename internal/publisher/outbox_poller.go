package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/circuitbreaker"
	"github.com/sportscarhub/storefront/internal/metrics"
	"github.com/sportscarhub/storefront/internal/repository"
)

const (
	defaultBatchSize = 100
	defaultTick      = time.Second
)

// OutboxPoller moves committed order events from the outbox to a Sink. An
// event that fails to send stays in the outbox and is retried on a later
// tick, so delivery is at least once.
type OutboxPoller struct {
	repo      repository.OutboxRepository
	sink      Sink
	metrics   *metrics.Metrics
	log       zerolog.Logger
	eventTick time.Duration
	batchSize int
}

func NewOutboxPoller(repo repository.OutboxRepository, sink Sink, m *metrics.Metrics, log zerolog.Logger) *OutboxPoller {
	return &OutboxPoller{
		repo:      repo,
		sink:      sink,
		metrics:   m,
		log:       log.With().Str("component", "outbox").Logger(),
		eventTick: defaultTick,
		batchSize: defaultBatchSize,
	}
}

// WithInterval overrides the polling interval.
func (p *OutboxPoller) WithInterval(d time.Duration) *OutboxPoller {
	if d > 0 {
		p.eventTick = d
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents handles one batch and returns how many events were
// delivered and marked.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch outbox events")
		return 0
	}

	delivered := 0
	for _, event := range events {
		if err := p.sink.Send(ctx, event); err != nil {
			p.metrics.OutboxEvent(event.EventType, "failed")
			if errors.Is(err, circuitbreaker.ErrOpen) {
				p.log.Warn().Msg("sink unavailable, postponing outbox batch")
				return delivered
			}
			p.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to publish event")
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.metrics.OutboxEvent(event.EventType, "unmarked")
			p.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark event as processed")
			continue
		}
		p.metrics.OutboxEvent(event.EventType, "published")
		delivered++
	}
	return delivered
}
