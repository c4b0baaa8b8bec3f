package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a line item in a user's cart. Car details are copied from the
// catalog when the item is added, so later catalog edits do not change it.
type CartItem struct {
	ID        string          `json:"id"`
	CarID     string          `json:"car_id"`
	Make      string          `json:"make"`
	Model     string          `json:"model"`
	Year      int             `json:"year"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// LineTotal returns UnitPrice × Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	OwnerID string          `json:"owner_id"`
	Items   []CartItem      `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

// NewCart builds a cart view and computes its total.
func NewCart(ownerID string, items []CartItem) *Cart {
	if items == nil {
		items = []CartItem{}
	}
	return &Cart{
		OwnerID: ownerID,
		Items:   items,
		Total:   SumLineTotals(items),
	}
}

// SumLineTotals is the exact decimal sum of every item's line total.
func SumLineTotals(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
