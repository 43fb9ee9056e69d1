package badge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shopfront/internal/domain"
)

type fakeSession struct {
	mu      sync.Mutex
	session domain.Session
}

func (f *fakeSession) ID() string { return "ctx-1" }

func (f *fakeSession) Snapshot() domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeSession) set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = domain.Session{Token: token, Role: domain.RoleUser}
}

type fakeCart struct {
	items   []domain.CartItem
	err     error
	calls   int
	onFetch func()
}

func (f *fakeCart) Cart(ctx context.Context) ([]domain.CartItem, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.items, f.err
}

func items(n int) []domain.CartItem {
	out := make([]domain.CartItem, n)
	for i := range out {
		out[i] = domain.CartItem{ID: int64(i + 1), ProductID: int64(i + 1), Quantity: 1}
	}
	return out
}

func TestRefresh_AnonymousSkipsNetwork(t *testing.T) {
	cart := &fakeCart{items: items(3)}
	syncer := New(&fakeSession{}, cart, nil)

	count := syncer.Refresh(context.Background())

	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if cart.calls != 0 {
		t.Errorf("cart fetched %d times, want 0", cart.calls)
	}
}

func TestRefresh_CountsLineItems(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok")
	cart := &fakeCart{items: items(4)}

	var notified []int
	syncer := New(sess, cart, func(contextID string, count int) {
		if contextID != "ctx-1" {
			t.Errorf("context id = %q, want ctx-1", contextID)
		}
		notified = append(notified, count)
	})

	if got := syncer.Refresh(context.Background()); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}
	if len(notified) != 1 || notified[0] != 4 {
		t.Errorf("notifications = %v, want [4]", notified)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok")
	cart := &fakeCart{items: items(2)}

	notifications := 0
	syncer := New(sess, cart, func(string, int) { notifications++ })

	first := syncer.Refresh(context.Background())
	second := syncer.Refresh(context.Background())

	if first != second {
		t.Errorf("counts differ: %d vs %d", first, second)
	}
	if cart.calls != 2 {
		t.Errorf("cart fetched %d times, want 2", cart.calls)
	}
	// an unchanged count produces no duplicate badge update
	if notifications != 1 {
		t.Errorf("notifications = %d, want 1", notifications)
	}
}

func TestRefresh_FailureKeepsPriorCount(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok")
	cart := &fakeCart{items: items(3)}
	syncer := New(sess, cart, nil)

	if got := syncer.Refresh(context.Background()); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}

	cart.err = errors.New("upstream unreachable")
	if got := syncer.Refresh(context.Background()); got != 3 {
		t.Errorf("count after failure = %d, want prior 3", got)
	}
	if syncer.Count() != 3 {
		t.Errorf("Count() = %d, want 3", syncer.Count())
	}
}

func TestRefresh_LateResponseAfterLogoutDiscarded(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok")
	cart := &fakeCart{items: items(5)}
	// the session is cleared while the fetch is in flight
	cart.onFetch = func() { sess.mu.Lock(); sess.session = domain.Session{}; sess.mu.Unlock() }

	syncer := New(sess, cart, nil)
	if got := syncer.Refresh(context.Background()); got != 0 {
		t.Errorf("count = %d, want 0 (stale response discarded)", got)
	}
}

func TestRefresh_TokenSwapMidFetchDiscarded(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok-old")
	cart := &fakeCart{items: items(5)}
	cart.onFetch = func() { sess.set("tok-new") }

	syncer := New(sess, cart, nil)
	if got := syncer.Refresh(context.Background()); got != 0 {
		t.Errorf("count = %d, want 0 (response for the old token discarded)", got)
	}
}

func TestRefresh_LogoutResetsToZero(t *testing.T) {
	sess := &fakeSession{}
	sess.set("tok")
	cart := &fakeCart{items: items(2)}
	syncer := New(sess, cart, nil)

	syncer.Refresh(context.Background())
	sess.mu.Lock()
	sess.session = domain.Session{}
	sess.mu.Unlock()

	if got := syncer.Refresh(context.Background()); got != 0 {
		t.Errorf("count after logout = %d, want 0", got)
	}
}
