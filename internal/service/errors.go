package service

import (
	"errors"

	"github.com/sportscarhub/storefront/internal/access"
)

var (
	ErrUnauthenticated = access.ErrUnauthenticated
	ErrUnauthorized    = access.ErrUnauthorized

	ErrEmptyCart            = errors.New("cart is empty")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrProofRequired        = errors.New("payment proof is required for this payment method")
	ErrInvalidProof         = errors.New("payment proof reference is invalid")
	ErrCommitFailed         = errors.New("checkout could not be committed")

	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrCarNotFound     = errors.New("car not found")

	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrConcurrentUpdate  = errors.New("order status changed concurrently, retry")

	ErrWatchUnavailable = errors.New("order notifications are not enabled")
)
