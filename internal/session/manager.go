package session

import (
	"context"
	"sync"

	"shopfront/internal/domain"
)

// Manager hands out the live Store of each browser context. At most one
// Store exists per context id per gateway instance; other instances hold
// their own, kept in step through the repository's change stream.
type Manager struct {
	repo domain.StateRepository

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates a Manager backed by the given repository.
func NewManager(repo domain.StateRepository) *Manager {
	return &Manager{
		repo:   repo,
		stores: make(map[string]*Store),
	}
}

// Get returns the live Store for the context, creating and seeding it
// from the repository on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[id]; ok {
		return store, nil
	}

	store, err := NewStore(ctx, id, m.repo)
	if err != nil {
		return nil, err
	}
	m.stores[id] = store
	return store, nil
}

// Peek returns the live Store if this instance already holds one.
func (m *Manager) Peek(id string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[id]
	return store, ok
}

// ApplyChange reconciles one context with the repository after another
// instance announced a change. A context this instance never served is
// skipped; its Store will seed from the repository when first requested.
func (m *Manager) ApplyChange(ctx context.Context, id string) error {
	store, ok := m.Peek(id)
	if !ok {
		return nil
	}

	state, err := m.repo.Load(ctx, id)
	if err == domain.ErrStateNotFound {
		state = &domain.BrowserState{ID: id}
	} else if err != nil {
		return err
	}

	store.ApplyExternal(state)
	return nil
}
