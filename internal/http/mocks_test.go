package http

import (
	"context"
	"sync"

	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/repository"
	"github.com/sportscarhub/storefront/internal/service"
)

type CatalogMock struct {
	cars []*domain.Car
	err  error
}

func (c CatalogMock) ListCars(context.Context) ([]*domain.Car, error) {
	return c.cars, c.err
}

func (c CatalogMock) GetCar(_ context.Context, id string) (*domain.Car, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, car := range c.cars {
		if car.ID == id {
			return car, nil
		}
	}
	return nil, repository.ErrCarNotFound
}

type CartMock struct {
	cart    *domain.Cart
	item    *domain.CartItem
	err     error
	viewers []domain.Identity
	m       sync.Mutex
}

func (c *CartMock) record(viewer domain.Identity) {
	c.m.Lock()
	defer c.m.Unlock()
	c.viewers = append(c.viewers, viewer)
}

func (c *CartMock) GetCart(_ context.Context, viewer domain.Identity) (*domain.Cart, error) {
	c.record(viewer)
	if !viewer.IsAuthenticated() {
		return nil, service.ErrUnauthenticated
	}
	return c.cart, c.err
}

func (c *CartMock) AddItem(_ context.Context, viewer domain.Identity, carID string, quantity int) (*domain.CartItem, error) {
	c.record(viewer)
	if c.err != nil {
		return nil, c.err
	}
	if quantity < 1 || quantity > 99 {
		return nil, service.ErrInvalidQuantity
	}
	item := *c.item
	item.CarID = carID
	item.Quantity = quantity
	return &item, nil
}

func (c *CartMock) RemoveItem(_ context.Context, viewer domain.Identity, _ string) error {
	c.record(viewer)
	return c.err
}

type CheckoutMock struct {
	orderID string
	err     error
	last    service.PlaceOrderRequest
	calls   int
	m       sync.Mutex
}

func (c *CheckoutMock) PlaceOrder(_ context.Context, viewer domain.Identity, req service.PlaceOrderRequest) (string, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.calls++
	c.last = req
	if !viewer.IsAuthenticated() {
		return "", service.ErrUnauthenticated
	}
	return c.orderID, c.err
}

type OrdersMock struct {
	order  *domain.Order
	orders []*domain.Order
	err    error
	events chan domain.OrderEvent
}

func (o *OrdersMock) GetOrder(context.Context, domain.Identity, string) (*domain.Order, error) {
	return o.order, o.err
}

func (o *OrdersMock) ListOrders(context.Context, domain.Identity) ([]*domain.Order, error) {
	return o.orders, o.err
}

func (o *OrdersMock) TransitionStatus(_ context.Context, _ domain.Identity, _ string, newStatus string) (*domain.Order, error) {
	if o.err != nil {
		return nil, o.err
	}
	updated := *o.order
	updated.Status = domain.OrderStatus(newStatus)
	return &updated, nil
}

func (o *OrdersMock) Watch(context.Context, domain.Identity) (<-chan domain.OrderEvent, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.events, nil
}
