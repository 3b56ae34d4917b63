// Package subscription maps raw document store change feeds into typed entity
// streams. Each stream delivers complete set snapshots: every push fully
// supersedes the previous one, so consumers replace their state rather than
// merging deltas.
package subscription

import (
	"context"
	"sync"

	"inkwell/internal/docstore"
	"inkwell/internal/observability"
)

// Manager opens typed streams over one store and tracks them for shutdown.
type Manager struct {
	store   docstore.Store
	logger  *observability.StreamLogger
	metrics *observability.StreamMetrics

	mu     sync.Mutex
	open   map[docstore.Subscription]struct{}
	closed bool
}

// NewManager returns a manager over the given store.
func NewManager(store docstore.Store) *Manager {
	return &Manager{
		store:   store,
		logger:  observability.NewStreamLogger("subscription manager"),
		metrics: observability.NewStreamMetrics(),
		open:    make(map[docstore.Subscription]struct{}),
	}
}

// Store exposes the underlying document store.
func (m *Manager) Store() docstore.Store { return m.store }

func (m *Manager) register(sub docstore.Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.open[sub] = struct{}{}
	m.metrics.StreamOpened()
	return true
}

func (m *Manager) deregister(sub docstore.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[sub]; ok {
		delete(m.open, sub)
		m.metrics.StreamClosed()
	}
}

// Shutdown unsubscribes every open stream. Streams end cleanly, without an
// error snapshot.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	subs := make([]docstore.Subscription, 0, len(m.open))
	for sub := range m.open {
		subs = append(subs, sub)
	}
	m.open = make(map[docstore.Subscription]struct{})
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
		m.metrics.StreamClosed()
	}
	m.logger.LogClose(ctx, "*", "manager shutdown")
	return nil
}

// Raw opens an untyped subscription tracked by the manager.
func (m *Manager) Raw(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	sub, err := m.store.Subscribe(ctx, q)
	if err != nil {
		return nil, err
	}
	if !m.register(sub) {
		sub.Unsubscribe()
		return nil, docstore.ErrClosed
	}
	m.logger.LogOpen(ctx, q.Collection, map[string]interface{}{"typed": false})
	return &trackedSub{Subscription: sub, m: m}, nil
}

type trackedSub struct {
	docstore.Subscription
	m    *Manager
	once sync.Once
}

func (t *trackedSub) Unsubscribe() {
	t.Subscription.Unsubscribe()
	t.once.Do(func() { t.m.deregister(t.Subscription) })
}
