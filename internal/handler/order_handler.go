package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// OrderAPI is the order-history slice of the storefront API.
type OrderAPI interface {
	Orders(ctx context.Context, page int) (*upstream.OrderPage, error)
	Order(ctx context.Context, id int64) (*domain.Order, error)
}

// OrderHandler serves the order history endpoints.
type OrderHandler struct {
	api OrderAPI
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(api OrderAPI) *OrderHandler {
	return &OrderHandler{api: api}
}

// List retrieves one page of the context's order history
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	orders, err := h.api.Orders(upstream.WithSession(r.Context(), store), parsePage(r))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	// an empty history is a page, not an error
	if orders.Data == nil {
		orders.Data = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

// Get retrieves a single order
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.api.Order(upstream.WithSession(r.Context(), store), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": order})
}
