package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// AdminAPI is the back-office slice of the storefront API.
type AdminAPI interface {
	AdminDashboard(ctx context.Context) (*domain.DashboardStats, error)
	AdminProducts(ctx context.Context, page int) (*upstream.ProductPage, error)
	AdminOrders(ctx context.Context, page int) (*upstream.OrderPage, error)
	AdminUsers(ctx context.Context, page int) (*upstream.UserPage, error)
	CreateProduct(ctx context.Context, input upstream.ProductInput) error
	UpdateProduct(ctx context.Context, id int64, input upstream.ProductInput) error
	DeleteProduct(ctx context.Context, id int64) error
}

// AdminHandler serves the back-office endpoints.
type AdminHandler struct {
	api AdminAPI
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(api AdminAPI) *AdminHandler {
	return &AdminHandler{api: api}
}

// Dashboard retrieves the back-office overview stats
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	stats, err := h.api.AdminDashboard(upstream.WithSession(r.Context(), store))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Products retrieves one page of the product listing
func (h *AdminHandler) Products(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	page, err := h.api.AdminProducts(upstream.WithSession(r.Context(), store), parsePage(r))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Orders retrieves one page of all orders
func (h *AdminHandler) Orders(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	page, err := h.api.AdminOrders(upstream.WithSession(r.Context(), store), parsePage(r))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Users retrieves one page of registered accounts
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	page, err := h.api.AdminUsers(upstream.WithSession(r.Context(), store), parsePage(r))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// CreateProduct adds a catalog entry. Validation failures are reported
// inline and never reach the storefront API.
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	var input upstream.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.api.CreateProduct(upstream.WithSession(r.Context(), store), input); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Name, positive price and at least one image are required")
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

// UpdateProduct replaces a catalog entry
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	var input upstream.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.api.UpdateProduct(upstream.WithSession(r.Context(), store), id, input); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Name, positive price and at least one image are required")
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteProduct removes a catalog entry
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	if err := h.api.DeleteProduct(upstream.WithSession(r.Context(), store), id); err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
