// Package badge keeps the navigation cart badge in sync with the
// server-side cart. The count is derived state: the upstream cart is
// authoritative and the badge only ever reflects it.
package badge

import (
	"context"
	"sync"

	"shopfront/internal/domain"
	"shopfront/internal/observability"
)

// SessionReader is the read-only slice of the session store the
// synchronizer consults.
type SessionReader interface {
	ID() string
	Snapshot() domain.Session
}

// CartFetcher fetches the current cart for the session attached to ctx.
type CartFetcher interface {
	Cart(ctx context.Context) ([]domain.CartItem, error)
}

// Notify pushes a recomputed count to whoever renders the badge.
type Notify func(contextID string, count int)

// Synchronizer recomputes the visible cart-item count for one browser
// context whenever the session or cart contents change.
type Synchronizer struct {
	session SessionReader
	cart    CartFetcher
	notify  Notify

	mu    sync.Mutex
	count int
}

// New creates a synchronizer. notify may be nil.
func New(session SessionReader, cart CartFetcher, notify Notify) *Synchronizer {
	return &Synchronizer{session: session, cart: cart, notify: notify}
}

// Count returns the last computed badge count.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Refresh recomputes the count. Anonymous sessions get zero without a
// network call. On fetch failure the prior count stays visible. A
// response that arrives after the session changed underneath the fetch
// is discarded rather than applied.
func (s *Synchronizer) Refresh(ctx context.Context) int {
	token := s.session.Snapshot().Token
	if token == "" {
		observability.BadgeRefreshesTotal.WithLabelValues("anonymous").Inc()
		return s.apply(0)
	}

	items, err := s.cart.Cart(ctx)
	if err != nil {
		observability.BadgeRefreshesTotal.WithLabelValues("error").Inc()
		observability.FromContext(ctx).Warn("cart badge refresh failed",
			"context_id", s.session.ID(), "error", err.Error())
		return s.Count()
	}

	// the session may have been cleared or replaced while the fetch was
	// in flight; a late response must not resurrect stale state
	if s.session.Snapshot().Token != token {
		observability.BadgeRefreshesTotal.WithLabelValues("stale").Inc()
		return s.Count()
	}

	observability.BadgeRefreshesTotal.WithLabelValues("ok").Inc()
	return s.apply(len(items))
}

func (s *Synchronizer) apply(count int) int {
	s.mu.Lock()
	changed := s.count != count
	s.count = count
	s.mu.Unlock()

	if changed && s.notify != nil {
		s.notify(s.session.ID(), count)
	}
	return count
}
