package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sportscarhub/storefront/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// serviceErrors is checked in order; the first match wins.
var serviceErrors = []errorMapping{
	{service.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{service.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{service.ErrCarNotFound, http.StatusNotFound, "car_not_found"},
	{service.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{service.ErrUnknownPaymentMethod, http.StatusBadRequest, "unknown_payment_method"},
	{service.ErrProofRequired, http.StatusBadRequest, "payment_proof_required"},
	{service.ErrInvalidProof, http.StatusBadRequest, "invalid_payment_proof"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{service.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
	{service.ErrCommitFailed, http.StatusConflict, "commit_failed"},
	{service.ErrWatchUnavailable, http.StatusServiceUnavailable, "watch_unavailable"},
}

// handleServiceError maps core errors to HTTP responses. Unknown errors are
// logged and reported as a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			respondError(w, m.status, m.code, m.err.Error())
			return
		}
	}

	l := requestLogger(r)
	l.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
