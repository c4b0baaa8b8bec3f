package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/access"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/metrics"
	"github.com/sportscarhub/storefront/internal/repository"
)

const maxStatusAttempts = 3

// OrdersService serves order reads under the access policy and applies
// status transitions.
type OrdersService struct {
	orders   repository.OrderRepository
	policy   *access.Policy
	hub      EventHub
	notifier Notifier
	metrics  *metrics.Metrics
	clock    *Clock
	log      zerolog.Logger
}

type OrdersOption func(*OrdersService)

func WithEventHub(h EventHub) OrdersOption {
	return func(s *OrdersService) { s.hub = h }
}

func WithOrdersNotifier(n Notifier) OrdersOption {
	return func(s *OrdersService) { s.notifier = n }
}

func WithOrdersMetrics(m *metrics.Metrics) OrdersOption {
	return func(s *OrdersService) { s.metrics = m }
}

func WithOrdersClock(c *Clock) OrdersOption {
	return func(s *OrdersService) { s.clock = c }
}

func NewOrdersService(orders repository.OrderRepository, policy *access.Policy, log zerolog.Logger, opts ...OrdersOption) *OrdersService {
	s := &OrdersService{
		orders: orders,
		policy: policy,
		clock:  NewClock(nil),
		log:    log.With().Str("component", "orders").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrder returns the order if the viewer may see it. A viewer without
// operator privileges gets ErrUnauthorized for any order outside their own,
// whether or not it exists.
func (s *OrdersService) GetOrder(ctx context.Context, viewer domain.Identity, orderID string) (*domain.Order, error) {
	scope, err := s.policy.Scope(viewer)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, orderID, scope)
	if errors.Is(err, repository.ErrOrderNotFound) {
		if scope.All {
			return nil, ErrOrderNotFound
		}
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders returns the viewer's orders, or every order for operators,
// newest first.
func (s *OrdersService) ListOrders(ctx context.Context, viewer domain.Identity) ([]*domain.Order, error) {
	scope, err := s.policy.Scope(viewer)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListOrders(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrdersService) TransitionStatus(ctx context.Context, viewer domain.Identity, orderID, newStatus string) (*domain.Order, error) {
	if err := s.policy.AuthorizeTransition(viewer); err != nil {
		return nil, err
	}
	to, known := domain.ParseOrderStatus(newStatus)

	all := domain.OrderScope{All: true}
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		current, err := s.orders.GetOrder(ctx, orderID, all)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}

		from := current.Status
		// a finished order refuses every request, even a malformed one
		if from.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
		}
		if !known {
			return nil, ErrInvalidStatus
		}
		if !domain.CanTransitionTo(from, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		updated, err := s.orders.UpdateStatus(ctx, orderID, from, to, s.clock.Now())
		if errors.Is(err, repository.ErrStatusConflict) {
			s.log.Debug().Str("order_id", orderID).Int("attempt", attempt+1).Msg("status changed underneath, retrying")
			continue
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}

		s.metrics.StatusTransitioned(string(from), string(to))
		if s.notifier != nil {
			s.notifier.Publish(domain.NewOrderEvent(uuid.NewString(), domain.OrderEventStatusChanged, updated, updated.UpdatedAt))
		}
		s.log.Info().
			Str("order_id", orderID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("operator", viewer.UserID).
			Msg("order status changed")
		return updated, nil
	}

	return nil, ErrConcurrentUpdate
}

// Watch streams order events visible to the viewer until ctx is done. Events
// are dropped for subscribers that fall behind.
func (s *OrdersService) Watch(ctx context.Context, viewer domain.Identity) (<-chan domain.OrderEvent, error) {
	scope, err := s.policy.Scope(viewer)
	if err != nil {
		return nil, err
	}
	if s.hub == nil {
		return nil, ErrWatchUnavailable
	}

	events, cancel := s.hub.Subscribe(func(e domain.OrderEvent) bool {
		return scope.All || e.OwnerID == scope.OwnerID
	})
	s.metrics.WatcherAdded()

	go func() {
		<-ctx.Done()
		cancel()
		s.metrics.WatcherRemoved()
	}()
	return events, nil
}
