package subscription

import (
	"context"
	"sync"

	"inkwell/internal/docstore"
)

// SetSnapshot is one complete result set for a typed stream. When Err is set
// the stream is about to close and Items is empty.
type SetSnapshot[T any] struct {
	Items []T
	Err   error
}

// Stream delivers typed set snapshots for one query. A slow consumer never
// blocks the store: an undelivered snapshot is replaced by the next one.
type Stream[T any] struct {
	ch     chan SetSnapshot[T]
	raw    docstore.Subscription
	onStop func()

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Snapshots returns the channel snapshots arrive on. Closed when the stream
// ends.
func (s *Stream[T]) Snapshots() <-chan SetSnapshot[T] { return s.ch }

// Unsubscribe ends the stream. After it returns no further snapshot is
// delivered or observable on Snapshots().
func (s *Stream[T]) Unsubscribe() {
	s.raw.Unsubscribe()
	s.stop(true)
}

func (s *Stream[T]) deliver(snap SetSnapshot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		// Drop the stale undelivered snapshot and try again.
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Stream[T]) close() { s.stop(false) }

// stop ends the stream. With drain it discards any undelivered snapshot so
// nothing is observable after Unsubscribe returns; without it a buffered
// terminal error snapshot stays readable before the channel close.
func (s *Stream[T]) stop(drain bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		if drain {
			select {
			case <-s.ch:
			default:
			}
		}
		close(s.ch)
		s.mu.Unlock()
		if s.onStop != nil {
			s.onStop()
		}
	})
}

// Open starts a typed stream for q on the manager's store. Documents are
// decoded into T; duplicate ids within one snapshot are dropped, first
// occurrence wins.
func Open[T any](ctx context.Context, m *Manager, q docstore.Query) (*Stream[T], error) {
	raw, err := m.store.Subscribe(ctx, q)
	if err != nil {
		m.logger.LogError(ctx, q.Collection, err)
		return nil, err
	}
	if !m.register(raw) {
		raw.Unsubscribe()
		return nil, docstore.ErrClosed
	}
	m.logger.LogOpen(ctx, q.Collection, map[string]interface{}{"typed": true})

	s := &Stream[T]{
		ch:  make(chan SetSnapshot[T], 1),
		raw: raw,
		onStop: func() {
			m.deregister(raw)
		},
	}

	go func() {
		defer s.close()
		for snap := range raw.Snapshots() {
			if snap.Err != nil {
				m.metrics.RecordStreamError(q.Collection)
				m.logger.LogError(ctx, q.Collection, snap.Err)
				s.deliver(SetSnapshot[T]{Err: snap.Err})
				return
			}
			items, derr := decodeSet[T](snap.Docs)
			if derr != nil {
				m.metrics.RecordStreamError(q.Collection)
				m.logger.LogError(ctx, q.Collection, derr)
				s.deliver(SetSnapshot[T]{Err: derr})
				return
			}
			m.metrics.RecordSnapshot(q.Collection)
			s.deliver(SetSnapshot[T]{Items: items})
		}
	}()

	return s, nil
}

func decodeSet[T any](docs []docstore.Document) ([]T, error) {
	items := make([]T, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if id, ok := doc["id"].(string); ok {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		var item T
		if err := docstore.Decode(doc, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
