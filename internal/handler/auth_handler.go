package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"shopfront/internal/domain"
	"shopfront/internal/flow"
	"shopfront/internal/middleware"
	"shopfront/internal/upstream"
)

// AuthFlow runs credential exchange, session establishment and teardown.
type AuthFlow interface {
	Login(ctx context.Context, store flow.Store, email, password string) (*upstream.AuthResult, error)
	Register(ctx context.Context, store flow.Store, name, email, password string) (*upstream.AuthResult, error)
	Logout(ctx context.Context, store flow.Store) error
}

// AccountAPI fetches the authenticated account from the storefront API.
type AccountAPI interface {
	Me(ctx context.Context) (*upstream.Account, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	flow AuthFlow
	api  AccountAPI
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authFlow AuthFlow, api AccountAPI) *AuthHandler {
	return &AuthHandler{flow: authFlow, api: api}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse reports the session the gateway now holds. The token
// itself never leaves the gateway.
type SessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Role          domain.Role      `json:"role,omitempty"`
	User          *upstream.Account `json:"user,omitempty"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.flow.Login(r.Context(), store, req.Email, req.Password)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		Role:          store.Snapshot().Role,
		User:          &result.User,
	})
}

// Register handles account creation
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.flow.Register(r.Context(), store, req.Name, req.Email, req.Password)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		Authenticated: true,
		Role:          store.Snapshot().Role,
		User:          &result.User,
	})
}

// Logout tears the session down
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	if err := h.flow.Logout(r.Context(), store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
}

// Me reports the current session, fetching the profile lazily from the
// storefront API when the session has one.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	current := store.Snapshot()
	if current.Anonymous() {
		writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
		return
	}

	account, err := h.api.Me(upstream.WithSession(r.Context(), store))
	if err != nil {
		// the interceptor may have torn the session down under us
		if store.Snapshot().Anonymous() {
			writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
			return
		}
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		Role:          current.Role,
		User:          account,
	})
}
