package service

import "github.com/sportscarhub/storefront/internal/domain"

// Notifier receives order events after they are committed. Delivery is best
// effort.
type Notifier interface {
	Publish(event domain.OrderEvent)
}

// EventHub fans order events out to subscribers. The returned cancel func
// unsubscribes and closes the channel.
type EventHub interface {
	Subscribe(filter func(domain.OrderEvent) bool) (<-chan domain.OrderEvent, func())
}
