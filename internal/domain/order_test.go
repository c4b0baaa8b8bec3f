package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_ComputesTotalFromSnapshot(t *testing.T) {
	items := []CartItem{
		{ID: "a", CarID: "porsche-911", UnitPrice: decimal.NewFromInt(250000), Quantity: 1},
		{ID: "b", CarID: "mini", UnitPrice: decimal.NewFromInt(5000), Quantity: 2},
	}
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	order := NewOrder("order-1", Identity{UserID: "u1", Email: "u1@example.com"}, items, PaymentMethodCard, nil, now)

	assert.True(t, decimal.NewFromInt(260000).Equal(order.TotalAmount))
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, "u1", order.OwnerID)
	assert.Equal(t, "u1@example.com", order.OwnerEmail)
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, []string{"a", "b"}, order.ItemIDs())
}

func TestNewOrder_SnapshotIsIndependentOfCart(t *testing.T) {
	items := []CartItem{{ID: "a", UnitPrice: decimal.NewFromInt(10), Quantity: 1}}
	order := NewOrder("order-1", Identity{UserID: "u1"}, items, PaymentMethodCOD, nil, time.Now())

	items[0].Quantity = 99
	items[0].UnitPrice = decimal.NewFromInt(1)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(order.TotalAmount))
}

func TestSumLineTotals_IsExact(t *testing.T) {
	items := []CartItem{
		{UnitPrice: decimal.RequireFromString("0.10"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("0.20"), Quantity: 1},
	}
	assert.Equal(t, "0.5", SumLineTotals(items).String())
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, PaymentMethodGCash.RequiresProof())
	assert.True(t, PaymentMethodBank.RequiresProof())
	assert.False(t, PaymentMethodCOD.RequiresProof())
	assert.False(t, PaymentMethodCard.RequiresProof())

	assert.True(t, PaymentMethodBank.IsValid())
	assert.False(t, PaymentMethod("crypto").IsValid())
	assert.Equal(t, "Bank Transfer", PaymentMethodBank.Title())
	assert.Equal(t, "Unknown", PaymentMethod("crypto").Title())
}

func TestOrderScope_Allows(t *testing.T) {
	order := &Order{ID: "o1", OwnerID: "u1"}

	assert.True(t, OrderScope{All: true}.Allows(order))
	assert.True(t, OrderScope{OwnerID: "u1"}.Allows(order))
	assert.False(t, OrderScope{OwnerID: "u2"}.Allows(order))
	assert.False(t, OrderScope{}.Allows(order))
}
