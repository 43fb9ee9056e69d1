package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"shopfront/internal/bus"
	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// CartAPI is the cart slice of the storefront API.
type CartAPI interface {
	Cart(ctx context.Context) ([]domain.CartItem, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	UpdateCartItem(ctx context.Context, itemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, itemID int64) error
	Checkout(ctx context.Context) (*upstream.CheckoutResult, error)
}

// OrderPublisher announces completed checkouts to interested consumers.
type OrderPublisher interface {
	OrderPlaced(ctx context.Context, orderID int64, contextID string) error
}

// CartHandler serves the cart and checkout endpoints.
type CartHandler struct {
	api    CartAPI
	events *bus.Bus
	orders OrderPublisher // nil when no broker is configured
}

// NewCartHandler creates a new cart handler
func NewCartHandler(api CartAPI, events *bus.Bus, orders OrderPublisher) *CartHandler {
	return &CartHandler{api: api, events: events, orders: orders}
}

// AddToCartRequest represents a cart mutation request
type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// UpdateItemRequest changes the quantity of one cart line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// Get retrieves the cart. An anonymous context has an empty cart, which
// is not an error.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	if store.Snapshot().Anonymous() {
		writeJSON(w, http.StatusOK, map[string]any{"cart": []domain.CartItem{}})
		return
	}

	items, err := h.api.Cart(upstream.WithSession(r.Context(), store))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if items == nil {
		items = []domain.CartItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"cart": items})
}

// Add puts a product in the cart. For anonymous contexts the request is
// parked in the deferred-intent slot and settles at the next login.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	var req AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ProductID <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "Product id and quantity must be positive")
		return
	}

	if store.Snapshot().Anonymous() {
		if err := store.Defer(r.Context(), req.ProductID, req.Quantity); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to remember cart intent")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"deferred": true})
		return
	}

	if err := h.api.AddToCart(upstream.WithSession(r.Context(), store), req.ProductID, req.Quantity); err != nil {
		writeUpstreamError(w, err)
		return
	}

	h.refreshBadge(store.ID())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// UpdateItem changes the quantity of one cart line
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "Quantity must be positive")
		return
	}

	if err := h.api.UpdateCartItem(upstream.WithSession(r.Context(), store), itemID, req.Quantity); err != nil {
		writeUpstreamError(w, err)
		return
	}

	h.refreshBadge(store.ID())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RemoveItem deletes one cart line
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	if err := h.api.RemoveCartItem(upstream.WithSession(r.Context(), store), itemID); err != nil {
		writeUpstreamError(w, err)
		return
	}

	h.refreshBadge(store.ID())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Checkout turns the cart into an order
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	result, err := h.api.Checkout(upstream.WithSession(r.Context(), store))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	if h.orders != nil && result.Order != nil {
		if err := h.orders.OrderPlaced(r.Context(), result.Order.ID, store.ID()); err != nil {
			slog.Warn("failed to publish order event",
				slog.Int64("order_id", result.Order.ID),
				slog.String("error", err.Error()))
		}
	}

	h.refreshBadge(store.ID())
	writeJSON(w, http.StatusOK, result)
}

func (h *CartHandler) refreshBadge(contextID string) {
	if h.events != nil {
		h.events.Publish(bus.Event{Type: bus.EventBadgeRefresh, ContextID: contextID})
	}
}
