package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/session"
)

// memStateRepository is an in-memory domain.StateRepository for tests
type memStateRepository struct {
	states map[string]*domain.BrowserState
}

func newMemStateRepository() *memStateRepository {
	return &memStateRepository{states: make(map[string]*domain.BrowserState)}
}

func (m *memStateRepository) Save(ctx context.Context, state *domain.BrowserState) error {
	copied := *state
	m.states[state.ID] = &copied
	return nil
}

func (m *memStateRepository) Load(ctx context.Context, id string) (*domain.BrowserState, error) {
	state, ok := m.states[id]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	copied := *state
	return &copied, nil
}

func (m *memStateRepository) Delete(ctx context.Context, id string) error {
	delete(m.states, id)
	return nil
}

// newAuthenticatedStore builds a live store carrying a user session.
func newAuthenticatedStore(t *testing.T, id, token string, role domain.Role) *session.Store {
	t.Helper()

	store := newAnonymousStore(t, id)
	if err := store.Set(context.Background(), token, role, nil); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return store
}

func newAnonymousStore(t *testing.T, id string) *session.Store {
	t.Helper()

	store, err := session.NewStore(context.Background(), id, newMemStateRepository())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

// requestWithStore binds a store to a request the way the browser-context
// middleware does.
func requestWithStore(r *http.Request, store *session.Store) *http.Request {
	return r.WithContext(middleware.WithStore(r.Context(), store))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
