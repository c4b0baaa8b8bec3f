package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent is written to the outbox in the same transaction as the change it
// describes and later fanned out to subscribers.
type OrderEvent struct {
	ID          string          `json:"event_id"`
	Type        OrderEventType  `json:"event_type"`
	OrderID     string          `json:"order_id"`
	OwnerID     string          `json:"owner_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewOrderEvent(id string, typ OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		ID:          id,
		Type:        typ,
		OrderID:     o.ID,
		OwnerID:     o.OwnerID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		OccurredAt:  at,
	}
}
