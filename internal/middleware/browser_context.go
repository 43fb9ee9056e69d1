package middleware

import (
	"context"
	"net/http"
	"time"

	"shopfront/internal/session"

	"github.com/google/uuid"
)

type contextKey string

const (
	// ContextCookie identifies the browser context across tabs and visits.
	ContextCookie = "shopfront_ctx"

	storeKey contextKey = "session_store"

	contextCookieMaxAge = 365 * 24 * time.Hour
)

// BrowserContext resolves the browser context of each request: it reads
// the context cookie, mints one for first-time visitors, and attaches the
// context's live session store to the request.
func BrowserContext(manager *session.Manager, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cookie, err := r.Cookie(ContextCookie); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					id = cookie.Value
				}
			}

			if id == "" {
				id = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     ContextCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(contextCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			store, err := manager.Get(r.Context(), id)
			if err != nil {
				http.Error(w, `{"error":"Service unavailable"}`, http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), storeKey, store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetStore returns the request's session store.
func GetStore(ctx context.Context) (*session.Store, bool) {
	store, ok := ctx.Value(storeKey).(*session.Store)
	return store, ok
}

// WithStore attaches a session store to the context. Used by tests and
// the websocket upgrade path.
func WithStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, storeKey, store)
}
