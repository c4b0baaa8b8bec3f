package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sportscarhub/storefront/internal/repository"
)

type CarHandler struct {
	catalog CatalogReader
	timeout time.Duration
}

func NewCarHandler(catalog CatalogReader, timeout time.Duration) *CarHandler {
	return &CarHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

// GET /api/v1/cars
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cars, err := h.catalog.ListCars(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cars)
}

// GET /api/v1/cars/{car_id}
func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	car, err := h.catalog.GetCar(ctx, chi.URLParam(r, "car_id"))
	if errors.Is(err, repository.ErrCarNotFound) {
		respondError(w, http.StatusNotFound, "car_not_found", "car not found")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, car)
}
