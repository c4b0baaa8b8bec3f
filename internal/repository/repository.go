package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sportscarhub/storefront/internal/domain"
)

var (
	ErrCarNotFound    = errors.New("car not found")
	ErrOrderNotFound  = errors.New("order not found")
	ErrCartChanged    = errors.New("cart changed since snapshot")
	ErrDuplicateOrder = errors.New("order for this idempotency key already exists")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CatalogRepository interface {
	ListCars(ctx context.Context) ([]*domain.Car, error)
	GetCar(ctx context.Context, id string) (*domain.Car, error)
	UpsertCars(ctx context.Context, cars []*domain.Car) error
}

// CartRepository is the cart store contract consumed by the checkout.
type CartRepository interface {
	ListItems(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	AddItem(ctx context.Context, ownerID string, item domain.CartItem) error
	// RemoveItems removes exactly the given items. Ids that are already
	// absent are ignored.
	RemoveItems(ctx context.Context, ownerID string, itemIDs ...string) error
}

type OrderRepository interface {
	// CommitCheckout inserts the order, deletes every snapshot item from the
	// owner's cart and records an order.placed outbox event in a single
	// transaction. If any snapshot item is no longer in the cart the whole
	// transaction is rolled back with ErrCartChanged.
	CommitCheckout(ctx context.Context, order *domain.Order, idempotencyKey string) error
	FindOrderIDByIdempotencyKey(ctx context.Context, ownerID, key string) (string, error)
	GetOrder(ctx context.Context, id string, scope domain.OrderScope) (*domain.Order, error)
	// ListOrders returns orders visible in scope, newest first.
	ListOrders(ctx context.Context, scope domain.OrderScope) ([]*domain.Order, error)
	// UpdateStatus moves an order from one status to another only if it is
	// still in status from, and records an order.status_changed event.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error)
}

type OutboxEvent struct {
	ID          string
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

// Store is everything the storefront persists. Cart items and orders must
// live in the same store so a checkout commits atomically.
type Store interface {
	CatalogRepository
	CartRepository
	OrderRepository
	OutboxRepository
	Close() error
}

func marshalEvent(event domain.OrderEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return payload, nil
}
