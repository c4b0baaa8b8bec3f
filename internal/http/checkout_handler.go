package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sportscarhub/storefront/internal/service"
)

const maxIdempotencyKeyLen = 128

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type PlaceOrderRequestDTO struct {
	PaymentMethod   string `json:"payment_method"`
	PaymentProofRef string `json:"payment_proof_ref"`
}

type PlaceOrderResponseDTO struct {
	OrderID string `json:"order_id"`
}

// POST /api/v1/checkout
//
// An optional Idempotency-Key header makes retries return the order created
// by the first successful attempt.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if len(key) > maxIdempotencyKeyLen {
		respondError(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key is too long")
		return
	}

	orderID, err := h.checkout.PlaceOrder(ctx, IdentityFromContext(r.Context()), service.PlaceOrderRequest{
		PaymentMethod:  req.PaymentMethod,
		ProofRef:       req.PaymentProofRef,
		IdempotencyKey: key,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+orderID)
	respondJSON(w, http.StatusCreated, PlaceOrderResponseDTO{OrderID: orderID})
}
