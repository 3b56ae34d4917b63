// Package memstore is an in-memory document store backend. It implements the
// full docstore contract, including atomic transactions and live snapshot
// subscriptions, and is the backend used by tests and local development.
package memstore

import (
	"context"
	"sync"

	"inkwell/internal/docstore"
)

// Store is an in-memory docstore.Store. A single mutex serializes commits, so
// transactions are trivially atomic and snapshots are pushed in commit order.
type Store struct {
	mu     sync.Mutex
	data   map[string]map[string]docstore.Document
	subs   map[*subscriber]struct{}
	clock  docstore.Clock
	closed bool
}

type subscriber struct {
	query docstore.Query
	feed  *docstore.Feed
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string]map[string]docstore.Document),
		subs: make(map[*subscriber]struct{}),
	}
}

// Get returns a copy of the document or docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc.Clone(), nil
}

// Put writes the document, replacing any existing one with the same id.
func (s *Store) Put(ctx context.Context, collection, id string, doc docstore.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	s.putLocked(collection, id, doc.Clone())
	s.notifyLocked(collection)
	return nil
}

// Delete removes the document. Deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	if _, ok := s.data[collection][id]; !ok {
		return nil
	}
	delete(s.data[collection], id)
	s.notifyLocked(collection)
	return nil
}

// RunTransaction executes fn under the store lock and applies its staged
// writes atomically. All server timestamps within one transaction resolve to
// the same instant.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	tx := &memTx{store: s, overlay: make(map[string]map[string]*overlayDoc)}
	if err := fn(tx); err != nil {
		return err
	}

	ts := s.clock.Next()
	changed := make(map[string]bool)
	for collection, docs := range tx.overlay {
		for id, od := range docs {
			if od.deleted {
				if _, ok := s.data[collection][id]; ok {
					delete(s.data[collection], id)
					changed[collection] = true
				}
				continue
			}
			s.putLocked(collection, id, docstore.ResolveTimestamps(od.doc, ts))
			changed[collection] = true
		}
	}
	for collection := range changed {
		s.notifyLocked(collection)
	}
	return nil
}

// Subscribe opens a live query and immediately pushes the current state.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := &subscriber{query: q}
	sub.feed = docstore.NewFeed(func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
	s.subs[sub] = struct{}{}
	sub.feed.Push(s.queryLocked(q))
	return sub.feed, nil
}

// Close terminates every open subscription and rejects further operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subs {
		sub.feed.Close()
	}
	s.subs = make(map[*subscriber]struct{})
	return nil
}

func (s *Store) putLocked(collection, id string, doc docstore.Document) {
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]docstore.Document)
		s.data[collection] = col
	}
	col[id] = docstore.ResolveTimestamps(doc, s.clock.Next())
}

func (s *Store) queryLocked(q docstore.Query) []docstore.Document {
	var docs []docstore.Document
	for _, doc := range s.data[q.Collection] {
		if q.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	q.Sort(docs)
	return docs
}

// notifyLocked pushes fresh snapshots to every subscriber of the collection.
// Feed delivery never blocks, so holding the store lock here preserves commit
// order without risking a stall on slow consumers.
func (s *Store) notifyLocked(collection string) {
	for sub := range s.subs {
		if sub.query.Collection == collection {
			sub.feed.Push(s.queryLocked(sub.query))
		}
	}
}

type overlayDoc struct {
	deleted bool
	doc     docstore.Document
}

// memTx stages writes on an overlay; reads see committed state through the
// overlay. The store lock is held for the whole transaction, so tx methods
// access store state directly.
type memTx struct {
	store   *Store
	overlay map[string]map[string]*overlayDoc
}

func (t *memTx) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if od, ok := t.overlay[collection][id]; ok {
		if od.deleted {
			return nil, docstore.ErrNotFound
		}
		return od.doc.Clone(), nil
	}
	doc, ok := t.store.data[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc.Clone(), nil
}

func (t *memTx) Put(collection, id string, doc docstore.Document) {
	t.stage(collection, id, &overlayDoc{doc: doc.Clone()})
}

func (t *memTx) Delete(collection, id string) {
	t.stage(collection, id, &overlayDoc{deleted: true})
}

func (t *memTx) Increment(collection, id, field string, delta int64) {
	var doc docstore.Document
	if od, ok := t.overlay[collection][id]; ok && !od.deleted {
		doc = od.doc
	} else if committed, ok := t.store.data[collection][id]; ok {
		doc = committed.Clone()
	} else {
		doc = docstore.Document{}
	}
	cur, _ := doc[field].(float64)
	doc[field] = cur + float64(delta)
	t.stage(collection, id, &overlayDoc{doc: doc})
}

func (t *memTx) stage(collection, id string, od *overlayDoc) {
	col, ok := t.overlay[collection]
	if !ok {
		col = make(map[string]*overlayDoc)
		t.overlay[collection] = col
	}
	col[id] = od
}
