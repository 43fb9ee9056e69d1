// Package flow coordinates the authentication transition: credential
// exchange, session establishment, deferred-intent reconciliation and the
// badge refresh that follows.
package flow

import (
	"context"

	"shopfront/internal/bus"
	"shopfront/internal/domain"
	"shopfront/internal/observability"
	"shopfront/internal/upstream"
)

// API is the slice of the storefront client the flow drives.
type API interface {
	Login(ctx context.Context, email, password string) (*upstream.AuthResult, error)
	Register(ctx context.Context, name, email, password string) (*upstream.AuthResult, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
}

// Store is the per-browser-context session store the flow mutates.
type Store interface {
	ID() string
	Snapshot() domain.Session
	Set(ctx context.Context, token string, role domain.Role, profile *domain.Profile) error
	Clear(ctx context.Context) error
	TakeIfPresent(ctx context.Context) (domain.DeferredIntent, bool, error)
}

// Authenticator runs the login/registration flow for browser contexts.
type Authenticator struct {
	api    API
	events *bus.Bus
}

// New creates an authenticator. events may be nil in tests.
func New(api API, events *bus.Bus) *Authenticator {
	return &Authenticator{api: api, events: events}
}

// Login exchanges credentials for a session and reconciles any deferred
// cart intent.
func (a *Authenticator) Login(ctx context.Context, store Store, email, password string) (*upstream.AuthResult, error) {
	result, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.establish(ctx, store, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Register creates an account, then continues like a login.
func (a *Authenticator) Register(ctx context.Context, store Store, name, email, password string) (*upstream.AuthResult, error) {
	result, err := a.api.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.establish(ctx, store, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Logout tears the session down locally. The upstream token is simply
// abandoned; the API owns its expiry.
func (a *Authenticator) Logout(ctx context.Context, store Store) error {
	if err := store.Clear(ctx); err != nil {
		return err
	}
	a.refreshBadge(store.ID())
	return nil
}

// establish persists the new session and settles the deferred-intent
// slot. A user replay happens exactly once and completes before any
// later cart mutation from the same flow; an admin login discards the
// slot at the moment the role is known, because admins have no cart.
func (a *Authenticator) establish(ctx context.Context, store Store, result *upstream.AuthResult) error {
	role := result.User.Role
	if !role.Valid() {
		role = domain.RoleUser
	}

	if err := store.Set(ctx, result.Token, role, result.User.AsProfile()); err != nil {
		return err
	}

	intent, pending, err := store.TakeIfPresent(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("failed to settle deferred intent slot",
			"context_id", store.ID(), "error", err.Error())
	}

	if pending && role == domain.RoleUser {
		// the intent is already consumed: it replays once whether or not
		// the cart call succeeds
		replayCtx := upstream.WithSession(ctx, store)
		if err := a.api.AddToCart(replayCtx, intent.ProductID, intent.Quantity); err != nil {
			observability.IntentReplaysTotal.WithLabelValues("failed").Inc()
			observability.FromContext(ctx).Warn("deferred cart intent replay failed",
				"context_id", store.ID(),
				"product_id", intent.ProductID,
				"error", err.Error())
		} else {
			observability.IntentReplaysTotal.WithLabelValues("replayed").Inc()
		}
	} else if pending {
		observability.IntentReplaysTotal.WithLabelValues("discarded").Inc()
	}

	if role == domain.RoleUser {
		a.refreshBadge(store.ID())
	}
	return nil
}

func (a *Authenticator) refreshBadge(contextID string) {
	if a.events != nil {
		a.events.Publish(bus.Event{Type: bus.EventBadgeRefresh, ContextID: contextID})
	}
}
