package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	OwnerEmail      string          `json:"owner_email"`
	Items           []CartItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentProofRef *string         `json:"payment_proof_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewOrder snapshots items into a Pending order. The items slice is copied and
// the total is computed from the copy, never taken from the caller.
func NewOrder(id string, owner Identity, items []CartItem, method PaymentMethod, proofRef *string, createdAt time.Time) *Order {
	snapshot := make([]CartItem, len(items))
	copy(snapshot, items)

	return &Order{
		ID:              id,
		OwnerID:         owner.UserID,
		OwnerEmail:      owner.Email,
		Items:           snapshot,
		TotalAmount:     SumLineTotals(snapshot),
		Status:          OrderStatusPending,
		PaymentMethod:   method,
		PaymentProofRef: proofRef,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

// ItemIDs returns the cart item ids captured by the order.
func (o *Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ID)
	}
	return ids
}
