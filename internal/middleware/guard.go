package middleware

import (
	"net/http"

	"shopfront/internal/domain"
	"shopfront/internal/guard"
	"shopfront/internal/observability"
)

// Guard enforces a route policy against the request's session. Requests
// the policy rejects are redirected, never rendered.
func Guard(policy guard.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := domain.Session{}
			if store, ok := GetStore(r.Context()); ok {
				current = store.Snapshot()
			}

			decision := guard.Decide(current, policy)
			if !decision.Allow {
				observability.GuardDecisionsTotal.WithLabelValues("redirect").Inc()
				http.Redirect(w, r, decision.Path, http.StatusTemporaryRedirect)
				return
			}

			observability.GuardDecisionsTotal.WithLabelValues("allow").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
