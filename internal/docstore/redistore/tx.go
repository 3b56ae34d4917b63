package redistore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/internal/docstore"
)

type overlayDoc struct {
	collection string
	id         string
	deleted    bool
	doc        docstore.Document
}

// redisTx implements docstore.Tx over a raw key reader. Writes are staged on
// an overlay; reads see the overlay first, then the store. Every doc key the
// body touches, read or write, is recorded for WATCH.
type redisTx struct {
	ctx     context.Context
	read    func(ctx context.Context, key string) (string, error)
	touched map[string]struct{}
	overlay map[string]*overlayDoc
	changed map[string]struct{}
	readErr error
}

func (s *Store) newTx(ctx context.Context, read func(ctx context.Context, key string) (string, error)) *redisTx {
	return &redisTx{
		ctx:     ctx,
		read:    read,
		touched: make(map[string]struct{}),
		overlay: make(map[string]*overlayDoc),
		changed: make(map[string]struct{}),
	}
}

func (t *redisTx) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	key := docKey(collection, id)
	t.touched[key] = struct{}{}
	if od, ok := t.overlay[key]; ok {
		if od.deleted {
			return nil, docstore.ErrNotFound
		}
		return od.doc.Clone(), nil
	}
	raw, err := t.read(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return unmarshalDoc(raw)
}

func (t *redisTx) Put(collection, id string, doc docstore.Document) {
	t.stage(&overlayDoc{collection: collection, id: id, doc: doc.Clone()})
}

func (t *redisTx) Delete(collection, id string) {
	t.stage(&overlayDoc{collection: collection, id: id, deleted: true})
}

func (t *redisTx) Increment(collection, id, field string, delta int64) {
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
	t.stage(&overlayDoc{collection: collection, id: id, doc: doc})
}

func (t *redisTx) stage(od *overlayDoc) {
	key := docKey(od.collection, od.id)
	t.touched[key] = struct{}{}
	t.overlay[key] = od
	t.changed[od.collection] = struct{}{}
}

// apply queues the staged writes onto the MULTI pipeline. All server
// timestamps in one transaction resolve to the same instant.
func (t *redisTx) apply(ctx context.Context, pipe redis.Pipeliner, ts time.Time) error {
	if t.readErr != nil {
		return t.readErr
	}
	for key, od := range t.overlay {
		if od.deleted {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, colKey(od.collection), od.id)
			continue
		}
		raw, err := marshalDoc(docstore.ResolveTimestamps(od.doc, ts))
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, raw, 0)
		pipe.SAdd(ctx, colKey(od.collection), od.id)
	}
	for collection := range t.changed {
		pipe.Publish(ctx, ChangeChannel(collection), "txn")
	}
	return nil
}
