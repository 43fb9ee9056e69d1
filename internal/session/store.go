package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/observability"
)

// Store owns the session of a single browser context. All mutations go
// through Set/Clear; readers get consistent snapshots and never observe a
// half-applied update. Changes are persisted through the repository so they
// survive restarts and reach other gateway instances, whose stores ingest
// them through ApplyExternal.
type Store struct {
	id   string
	repo domain.StateRepository

	mu        sync.RWMutex
	session   domain.Session
	intent    *domain.DeferredIntent
	listeners []Listener
}

// Listener is invoked after every session change, including changes that
// originated on another gateway instance.
type Listener func(domain.Session)

// NewStore creates a store for the given browser context id, seeded from
// previously persisted state when present.
func NewStore(ctx context.Context, id string, repo domain.StateRepository) (*Store, error) {
	s := &Store{id: id, repo: repo}

	state, err := repo.Load(ctx, id)
	switch {
	case err == nil:
		s.session = state.Session
		s.intent = state.Intent
	case err == domain.ErrStateNotFound:
		// fresh browser context
	default:
		return nil, fmt.Errorf("failed to load browser state: %w", err)
	}

	return s, nil
}

// ID returns the browser context id this store belongs to.
func (s *Store) ID() string {
	return s.id
}

// Set persists token and role (plus an optional profile snapshot) and
// notifies subscribers. Token and role must be set together.
func (s *Store) Set(ctx context.Context, token string, role domain.Role, profile *domain.Profile) error {
	if token == "" || !role.Valid() {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	s.session = domain.Session{Token: token, Role: role, Profile: profile}
	if err := s.persistLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.session
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	observability.SessionChangesTotal.WithLabelValues("set").Inc()
	notify(listeners, snapshot)
	return nil
}

// Clear removes token, role, profile and any pending intent, persists the
// empty state and notifies subscribers.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.session = domain.Session{}
	s.intent = nil
	if err := s.repo.Delete(ctx, s.id); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear browser state: %w", err)
	}
	snapshot := s.session
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	observability.SessionChangesTotal.WithLabelValues("clear").Inc()
	notify(listeners, snapshot)
	return nil
}

// Snapshot returns a copy of the current session. Pure read.
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Subscribe registers a listener invoked on every session change.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ApplyExternal replaces the in-memory state with one loaded after a
// change notification from another instance. Last write wins; the state is
// not re-persisted, so notifications never echo back and forth.
func (s *Store) ApplyExternal(state *domain.BrowserState) {
	s.mu.Lock()
	changed := s.session.Token != state.Session.Token || s.session.Role != state.Session.Role
	s.session = state.Session
	s.intent = state.Intent
	snapshot := s.session
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if changed {
		observability.SessionChangesTotal.WithLabelValues("external").Inc()
		notify(listeners, snapshot)
	}
}

// persistLocked writes the current state through the repository.
// Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	state := &domain.BrowserState{
		ID:        s.id,
		Session:   s.session,
		Intent:    s.intent,
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to persist browser state: %w", err)
	}
	return nil
}

func notify(listeners []Listener, snapshot domain.Session) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
