package http

import (
	"context"

	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/service"
)

type CatalogReader interface {
	ListCars(ctx context.Context) ([]*domain.Car, error)
	GetCar(ctx context.Context, id string) (*domain.Car, error)
}

type CartService interface {
	GetCart(ctx context.Context, viewer domain.Identity) (*domain.Cart, error)
	AddItem(ctx context.Context, viewer domain.Identity, carID string, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, viewer domain.Identity, itemID string) error
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, viewer domain.Identity, req service.PlaceOrderRequest) (string, error)
}

type OrdersService interface {
	GetOrder(ctx context.Context, viewer domain.Identity, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, viewer domain.Identity) ([]*domain.Order, error)
	TransitionStatus(ctx context.Context, viewer domain.Identity, orderID, newStatus string) (*domain.Order, error)
	Watch(ctx context.Context, viewer domain.Identity) (<-chan domain.OrderEvent, error)
}
