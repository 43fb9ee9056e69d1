package badge

import "sync"

// Registry holds one synchronizer per browser context so the last known
// count survives between refreshes.
type Registry struct {
	cart   CartFetcher
	notify Notify

	mu    sync.Mutex
	syncs map[string]*Synchronizer
}

// NewRegistry creates a Registry. notify is shared by all synchronizers.
func NewRegistry(cart CartFetcher, notify Notify) *Registry {
	return &Registry{
		cart:   cart,
		notify: notify,
		syncs:  make(map[string]*Synchronizer),
	}
}

// For returns the context's synchronizer, creating it on first use.
func (r *Registry) For(session SessionReader) *Synchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.syncs[session.ID()]; ok {
		return s
	}
	s := New(session, r.cart, r.notify)
	r.syncs[session.ID()] = s
	return s
}
