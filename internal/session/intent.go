package session

import (
	"context"

	"shopfront/internal/domain"
)

// Defer stores the single pending add-to-cart intent, overwriting any
// existing one, and persists it alongside the session state.
func (s *Store) Defer(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 || quantity <= 0 {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.intent = &domain.DeferredIntent{ProductID: productID, Quantity: quantity}
	return s.persistLocked(ctx)
}

// TakeIfPresent atomically returns the stored intent and clears it.
// Returns ok=false when no intent is pending; safe to call in that case.
// The cleared slot is persisted so a replayed intent can never replay twice,
// even across a restart.
func (s *Store) TakeIfPresent(ctx context.Context) (domain.DeferredIntent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intent == nil {
		return domain.DeferredIntent{}, false, nil
	}

	intent := *s.intent
	s.intent = nil
	if err := s.persistLocked(ctx); err != nil {
		// slot stays cleared in memory; persistence is retried on next write
		return intent, true, err
	}
	return intent, true, nil
}

// PendingIntent reports the current slot without consuming it.
func (s *Store) PendingIntent() (domain.DeferredIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.intent == nil {
		return domain.DeferredIntent{}, false
	}
	return *s.intent, true
}
