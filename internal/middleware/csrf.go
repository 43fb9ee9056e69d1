package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"shopfront/internal/security"
)

// CSRFCookie carries the double-submit token. It is intentionally
// readable by page scripts, which echo it in the X-CSRF-Token header.
const CSRFCookie = "shopfront_csrf"

// CSRF validates state-changing requests with the double-submit cookie
// pattern: the token planted in a cookie must come back in a header, and
// the two must match in constant time.
//
// Flow:
// 1. Safe methods (GET, HEAD, OPTIONS) pass through, minting the cookie
//    for visitors that don't have one yet
// 2. Exempt endpoints (health, metrics, websocket) pass through
// 3. Everything else needs matching cookie and X-CSRF-Token header
func CSRF(tokens *security.TokenManager, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(CSRFCookie); err != nil {
					token, genErr := tokens.Generate()
					if genErr != nil {
						slog.Error("failed to generate csrf token",
							slog.String("error", genErr.Error()))
						http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
						return
					}
					http.SetCookie(w, &http.Cookie{
						Name:     CSRFCookie,
						Value:    token,
						Path:     "/",
						Secure:   secureCookies,
						SameSite: http.SameSiteLaxMode,
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookie)
			if err != nil {
				logCSRFFailure(r, "missing cookie")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			submitted := extractCSRFToken(r)
			if submitted == "" {
				logCSRFFailure(r, "missing token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			if err := tokens.Verify(cookie.Value, submitted); err != nil {
				logCSRFFailure(r, "invalid token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod returns true if the HTTP method is idempotent and cacheable.
// These methods should not modify state and don't require CSRF tokens.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// isExemptPath returns true if the request path should skip CSRF validation.
// Exempted paths include health checks, metrics, and websocket upgrades.
func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
		"/ws",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

// extractCSRFToken extracts the CSRF token from the request.
// Checks sources in order: X-CSRF-Token header, X-XSRF-Token header, form data.
func extractCSRFToken(r *http.Request) string {
	token := r.Header.Get("X-CSRF-Token")
	if token != "" {
		return token
	}

	token = r.Header.Get("X-XSRF-Token")
	if token != "" {
		return token
	}

	return r.FormValue("csrf_token")
}

// logCSRFFailure logs a security event when CSRF validation fails.
func logCSRFFailure(r *http.Request, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
