package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/metrics"
	"github.com/sportscarhub/storefront/internal/repository"
)

const maxProofRefLen = 255

type PlaceOrderRequest struct {
	PaymentMethod  string
	ProofRef       string
	IdempotencyKey string
}

// CartInvalidator drops cached cart state after a checkout.
type CartInvalidator interface {
	Invalidate(ownerID string)
}

// CheckoutService turns a user's cart into an order. The cart snapshot, order
// insert and cart cleanup happen in one store transaction.
type CheckoutService struct {
	carts       repository.CartRepository
	orders      repository.OrderRepository
	invalidator CartInvalidator
	notifier    Notifier
	metrics     *metrics.Metrics
	clock       *Clock
	newID       func() string
	log         zerolog.Logger
}

type CheckoutOption func(*CheckoutService)

func WithCheckoutNotifier(n Notifier) CheckoutOption {
	return func(s *CheckoutService) { s.notifier = n }
}

func WithCheckoutMetrics(m *metrics.Metrics) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

func WithCheckoutClock(c *Clock) CheckoutOption {
	return func(s *CheckoutService) { s.clock = c }
}

func WithOrderIDs(newID func() string) CheckoutOption {
	return func(s *CheckoutService) { s.newID = newID }
}

func WithCartInvalidator(inv CartInvalidator) CheckoutOption {
	return func(s *CheckoutService) { s.invalidator = inv }
}

func NewCheckoutService(carts repository.CartRepository, orders repository.OrderRepository, log zerolog.Logger, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		carts:  carts,
		orders: orders,
		clock:  NewClock(nil),
		newID:  uuid.NewString,
		log:    log.With().Str("component", "checkout").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder commits the viewer's current cart as a Pending order and returns
// its id. On ErrCommitFailed nothing was written and the cart is unchanged.
func (s *CheckoutService) PlaceOrder(ctx context.Context, viewer domain.Identity, req PlaceOrderRequest) (string, error) {
	if !viewer.IsAuthenticated() {
		s.metrics.CheckoutFailed("unauthenticated")
		return "", ErrUnauthenticated
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		id, err := s.orders.FindOrderIDByIdempotencyKey(ctx, viewer.UserID, key)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return "", fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	// the snapshot always comes from the store, never from the cart cache
	items, err := s.carts.ListItems(ctx, viewer.UserID)
	if err != nil {
		return "", fmt.Errorf("read cart: %w", err)
	}
	if len(items) == 0 {
		s.metrics.CheckoutFailed("empty_cart")
		return "", ErrEmptyCart
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if !method.IsValid() {
		s.metrics.CheckoutFailed("unknown_payment_method")
		return "", ErrUnknownPaymentMethod
	}

	proof := strings.TrimSpace(req.ProofRef)
	if method.RequiresProof() {
		if proof == "" {
			s.metrics.CheckoutFailed("proof_required")
			return "", ErrProofRequired
		}
		if err := validateProofRef(proof); err != nil {
			s.metrics.CheckoutFailed("invalid_proof")
			return "", err
		}
	}

	orderID := s.newID()
	var proofRef *string
	if method.RequiresProof() {
		ref := fmt.Sprintf("proof_%s_%s", orderID, proof)
		proofRef = &ref
	}
	order := domain.NewOrder(orderID, viewer, items, method, proofRef, s.clock.Now())

	if err := s.orders.CommitCheckout(ctx, order, key); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			// a concurrent request with the same key won
			if id, findErr := s.orders.FindOrderIDByIdempotencyKey(ctx, viewer.UserID, key); findErr == nil {
				return id, nil
			}
		}
		s.metrics.CheckoutFailed("commit_failed")
		s.log.Warn().Err(err).
			Str("owner_id", viewer.UserID).
			Str("order_id", orderID).
			Int("items", len(items)).
			Msg("checkout commit failed")
		return "", fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(viewer.UserID)
	}
	s.metrics.OrderPlaced(order.TotalAmount)
	if s.notifier != nil {
		s.notifier.Publish(domain.NewOrderEvent(uuid.NewString(), domain.OrderEventPlaced, order, order.CreatedAt))
	}

	s.log.Info().
		Str("owner_id", viewer.UserID).
		Str("order_id", order.ID).
		Str("total", order.TotalAmount.String()).
		Str("payment_method", string(method)).
		Msg("order placed")
	return order.ID, nil
}

// validateProofRef rejects references that could escape the proof storage
// namespace once combined into a file name.
func validateProofRef(ref string) error {
	if len(ref) > maxProofRefLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidProof, maxProofRefLen)
	}
	if strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return fmt.Errorf("%w: contains a path separator", ErrInvalidProof)
	}
	for _, r := range ref {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: contains control characters", ErrInvalidProof)
		}
	}
	return nil
}
