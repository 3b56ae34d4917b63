// Package docstore defines the capability surface this core needs from the
// remote document store: point reads and writes, multi-document atomic
// transactions, and filtered live subscriptions that push complete snapshots.
// Backends live in subpackages and share the query and snapshot semantics
// defined here.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the schemaless unit of storage. Values are restricted to what
// JSON can represent (string, float64, bool, nil, []any, map[string]any) plus
// the ServerTimestamp sentinel before a write is applied.
type Document map[string]any

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case Document:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a document field to be replaced with a store-assigned
// timestamp at commit time. Assigned timestamps are monotonic per store, so
// within a collection they are a stable ordering key.
var ServerTimestamp = serverTimestamp{}

// Encode converts a typed value into a Document via its JSON representation.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document back into a typed value via JSON.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Store-level failure sentinels. Callers map these onto the application error
// taxonomy; backends must return them (wrapped is fine) so errors.Is works.
var (
	// ErrNotFound is returned by point reads of absent documents.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned when a transaction lost against a concurrent
	// conflicting transaction. The operation applied nothing and may be
	// retried.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("docstore: store closed")
)

// Tx stages writes for a single atomic transaction. Reads observe committed
// state plus this transaction's own staged writes. All staged writes commit
// together or not at all; other observers never see an intermediate state.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Put(collection, id string, doc Document)
	Delete(collection, id string)
	// Increment adds delta to a numeric field, treating a missing field as 0.
	Increment(collection, id, field string, delta int64)
}

// Snapshot is one full-materialization push for a subscribed query. Docs fully
// supersedes every earlier snapshot for the query; consumers replace, never
// merge. A non-nil Err means the stream terminated abnormally and no further
// snapshots will follow.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Subscription is a live feed of snapshots for one query. The channel is
// closed after Unsubscribe or after an error snapshot; once Unsubscribe
// returns, no further snapshot is observable, including pushes that were
// already in flight.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Unsubscribe()
}

// Store is the external document store capability consumed by the sync core.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Put(ctx context.Context, collection, id string, doc Document) error
	// Delete removes a document; deleting an absent document is a no-op.
	Delete(ctx context.Context, collection, id string) error
	// RunTransaction executes fn and atomically commits its staged writes.
	// If fn returns an error nothing is applied and the error propagates.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	// Subscribe opens a live query. The first snapshot reflecting current
	// state is pushed without waiting for a change.
	Subscribe(ctx context.Context, q Query) (Subscription, error)
	Close() error
}
