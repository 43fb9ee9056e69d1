package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"shopfront/internal/domain"
	"shopfront/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// CatalogAPI is the catalog slice of the storefront API.
type CatalogAPI interface {
	Products(ctx context.Context, page int) (*upstream.ProductPage, error)
	Product(ctx context.Context, id int64) (*domain.Product, error)
}

// CatalogHandler serves the public product catalog.
type CatalogHandler struct {
	api CatalogAPI
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(api CatalogAPI) *CatalogHandler {
	return &CatalogHandler{api: api}
}

// List retrieves one page of the catalog
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)

	products, err := h.api.Products(r.Context(), page)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// Get retrieves a single product
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	product, err := h.api.Product(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "Product not found")
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": product})
}

// parsePage reads the page query parameter, defaulting to the first page.
func parsePage(r *http.Request) int {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}
	return page
}
