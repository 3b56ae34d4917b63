// Package gormstore is an embedded document store backend over a relational
// database (SQLite for local use, PostgreSQL for shared dev setups). Documents
// live as JSON rows in a single table and transactions map onto database
// transactions. Change notifications are in-process only: this backend sees
// its own commits, which is all a single client core needs.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/internal/docstore"
	"inkwell/internal/observability"
)

// documentRow is the relational shape of one document.
type documentRow struct {
	Collection string    `gorm:"primaryKey;size:128"`
	DocID      string    `gorm:"primaryKey;size:128;column:doc_id"`
	Data       string    `gorm:"type:text;not null"`
	UpdatedAt  time.Time `gorm:"index"`
}

func (documentRow) TableName() string { return "documents" }

// Store is a docstore.Store over a gorm database.
type Store struct {
	db      *gorm.DB
	clock   docstore.Clock
	metrics *observability.StoreMetrics

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	query docstore.Query
	feed  *docstore.Feed
}

// OpenSQLite opens (and migrates) a SQLite-backed store. Use ":memory:" for
// an ephemeral store.
func OpenSQLite(path string) (*Store, error) {
	return open(sqlite.Open(path))
}

// OpenPostgres opens (and migrates) a PostgreSQL-backed store.
func OpenPostgres(dsn string) (*Store, error) {
	return open(postgres.Open(dsn))
}

func open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return New(db), nil
}

// New returns a store over an existing gorm database. The documents table
// must already exist.
func New(db *gorm.DB) *Store {
	return &Store{
		db:      db,
		metrics: observability.NewStoreMetrics(),
		subs:    make(map[*subscriber]struct{}),
	}
}

// Get returns the document or docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	defer s.metrics.TrackOperation("get", collection)()
	return getRow(s.db.WithContext(ctx), collection, id)
}

// Put upserts the document and notifies collection subscribers.
func (s *Store) Put(ctx context.Context, collection, id string, doc docstore.Document) error {
	defer s.metrics.TrackOperation("put", collection)()
	raw, err := marshalDoc(docstore.ResolveTimestamps(doc.Clone(), s.clock.Next()))
	if err != nil {
		return err
	}
	row := documentRow{Collection: collection, DocID: id, Data: raw, UpdatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	s.notify(ctx, collection)
	return nil
}

// Delete removes the document; deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	defer s.metrics.TrackOperation("delete", collection)()
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return fmt.Errorf("delete document: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.notify(ctx, collection)
	}
	return nil
}

// RunTransaction executes fn inside a database transaction and applies its
// staged writes atomically.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	changed := make(map[string]struct{})
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		tx := &gormTx{ctx: ctx, db: gtx, overlay: make(map[string]*overlayDoc)}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.readErr != nil {
			return tx.readErr
		}
		ts := s.clock.Next()
		for _, od := range tx.overlay {
			if od.deleted {
				res := gtx.Where("collection = ? AND doc_id = ?", od.collection, od.id).
					Delete(&documentRow{})
				if res.Error != nil {
					return fmt.Errorf("delete document: %w", res.Error)
				}
				if res.RowsAffected > 0 {
					changed[od.collection] = struct{}{}
				}
				continue
			}
			raw, err := marshalDoc(docstore.ResolveTimestamps(od.doc, ts))
			if err != nil {
				return err
			}
			row := documentRow{Collection: od.collection, DocID: od.id, Data: raw, UpdatedAt: time.Now().UTC()}
			if err := gtx.Save(&row).Error; err != nil {
				return fmt.Errorf("save document: %w", err)
			}
			changed[od.collection] = struct{}{}
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordTransaction("aborted")
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
		}
		return err
	}
	s.metrics.RecordTransaction("committed")
	for collection := range changed {
		s.notify(ctx, collection)
	}
	return nil
}

// Subscribe opens a live query and immediately pushes the current state.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	sub := &subscriber{query: q}
	sub.feed = docstore.NewFeed(func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	docs, err := s.materialize(ctx, q)
	if err != nil {
		sub.feed.Unsubscribe()
		return nil, err
	}
	sub.feed.Push(docs)
	return sub.feed, nil
}

// Close terminates all subscriptions. The database handle stays open for its
// owner.
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

func (s *Store) notify(ctx context.Context, collection string) {
	s.mu.Lock()
	var targets []*subscriber
	for sub := range s.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		docs, err := s.materialize(ctx, sub.query)
		if err != nil {
			sub.feed.Fail(err)
			continue
		}
		sub.feed.Push(docs)
	}
}

func (s *Store) materialize(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var rows []documentRow
	if err := s.db.WithContext(ctx).
		Where("collection = ?", q.Collection).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	var docs []docstore.Document
	for _, row := range rows {
		doc, err := unmarshalDoc(row.Data)
		if err != nil {
			return nil, err
		}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	q.Sort(docs)
	return docs, nil
}

func getRow(db *gorm.DB, collection, id string) (docstore.Document, error) {
	var row documentRow
	err := db.Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return unmarshalDoc(row.Data)
}

type overlayDoc struct {
	collection string
	id         string
	deleted    bool
	doc        docstore.Document
}

// gormTx stages writes on an overlay; reads go through the open database
// transaction so they observe a consistent snapshot.
type gormTx struct {
	ctx     context.Context
	db      *gorm.DB
	overlay map[string]*overlayDoc
	readErr error
}

func txKey(collection, id string) string { return collection + "/" + id }

func (t *gormTx) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if od, ok := t.overlay[txKey(collection, id)]; ok {
		if od.deleted {
			return nil, docstore.ErrNotFound
		}
		return od.doc.Clone(), nil
	}
	return getRow(t.db.WithContext(ctx), collection, id)
}

func (t *gormTx) Put(collection, id string, doc docstore.Document) {
	t.overlay[txKey(collection, id)] = &overlayDoc{collection: collection, id: id, doc: doc.Clone()}
}

func (t *gormTx) Delete(collection, id string) {
	t.overlay[txKey(collection, id)] = &overlayDoc{collection: collection, id: id, deleted: true}
}

func (t *gormTx) Increment(collection, id, field string, delta int64) {
	doc, err := t.Get(t.ctx, collection, id)
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		// Absent target: the increment creates the document.
		doc = docstore.Document{}
	default:
		// A failed read must abort the transaction, not stage a write built
		// on an empty document. Increment has no error return, so the
		// failure is remembered and surfaced before commit.
		if t.readErr == nil {
			t.readErr = err
		}
		return
	}
	cur, _ := doc[field].(float64)
	doc[field] = cur + float64(delta)
	t.overlay[txKey(collection, id)] = &overlayDoc{collection: collection, id: id, doc: doc}
}

func marshalDoc(doc docstore.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(raw), nil
}

func unmarshalDoc(raw string) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
