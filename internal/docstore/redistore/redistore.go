// Package redistore is a Redis-backed document store backend. Documents are
// JSON values, collection membership is tracked in sets, and change feeds are
// driven by pub/sub: every commit publishes on its collection's channel and
// subscribers re-materialize their query into a full snapshot.
//
// Transactions are optimistic: the transaction body runs once for key
// discovery, then again under WATCH with the writes queued into MULTI/EXEC.
// A concurrent write to any watched key aborts the EXEC and the transaction
// retries; exhausting retries surfaces docstore.ErrConflict. Transaction
// bodies must therefore be free of side effects other than tx operations.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/internal/docstore"
	"inkwell/internal/observability"
)

const (
	docKeyPrefix  = "ink:doc:"
	colKeyPrefix  = "ink:col:"
	changePrefix  = "ink:changes:"
	changePattern = changePrefix + "*"

	maxTxAttempts = 5
)

func docKey(collection, id string) string { return docKeyPrefix + collection + ":" + id }
func colKey(collection string) string     { return colKeyPrefix + collection }

// ChangeChannel derives the pub/sub channel name for a collection.
func ChangeChannel(collection string) string { return changePrefix + collection }

// Store is a Redis-backed docstore.Store.
type Store struct {
	rdb     *redis.Client
	clock   docstore.Clock
	metrics *observability.StoreMetrics

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	listenCancel context.CancelFunc
}

type subscriber struct {
	query docstore.Query
	feed  *docstore.Feed
}

// Open connects to Redis at addr (plain host:port or a redis:// URL, like the
// application cache config), pings it, and returns a running store.
func Open(addr string) (*Store, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

// New returns a store over an existing client and starts its change listener.
// The store does not take ownership of the client.
func New(rdb *redis.Client) *Store {
	s := &Store{
		rdb:     rdb,
		metrics: observability.NewStoreMetrics(),
		subs:    make(map[*subscriber]struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	go s.listen(ctx)
	return s
}

// listen forwards collection change notifications to subscribers. Messages on
// one channel arrive in publish order, so snapshots for a query are pushed in
// commit order.
func (s *Store) listen(ctx context.Context) {
	sub := s.rdb.PSubscribe(ctx, changePattern)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.failSubscribers(errors.New("redistore: change feed disconnected"))
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("PANIC in redistore listener: %v\n%s", r, debug.Stack())
					}
				}()
				s.refresh(ctx, strings.TrimPrefix(msg.Channel, changePrefix))
			}()
		}
	}
}

func (s *Store) refresh(ctx context.Context, collection string) {
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
			s.removeSubscriber(sub)
			continue
		}
		sub.feed.Push(docs)
	}
}

func (s *Store) failSubscribers(err error) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscriber]struct{})
	closed := s.closed
	s.mu.Unlock()

	for _, sub := range subs {
		if closed {
			sub.feed.Close()
		} else {
			sub.feed.Fail(err)
		}
	}
}

// Get returns the document or docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	defer s.metrics.TrackOperation("get", collection)()
	raw, err := s.rdb.Get(ctx, docKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return unmarshalDoc(raw)
}

// Put writes the document and publishes a change notification atomically.
func (s *Store) Put(ctx context.Context, collection, id string, doc docstore.Document) error {
	defer s.metrics.TrackOperation("put", collection)()
	raw, err := marshalDoc(docstore.ResolveTimestamps(doc.Clone(), s.clock.Next()))
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), raw, 0)
		pipe.SAdd(ctx, colKey(collection), id)
		pipe.Publish(ctx, ChangeChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Delete removes the document; deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	defer s.metrics.TrackOperation("delete", collection)()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(collection, id))
		pipe.SRem(ctx, colKey(collection), id)
		pipe.Publish(ctx, ChangeChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// errKeysetChanged restarts a transaction whose second run touched keys that
// were not discovered (and therefore not watched) in the first run.
var errKeysetChanged = errors.New("redistore: transaction keyset changed")

// RunTransaction executes fn atomically with optimistic locking.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		keys, err := s.discoverKeys(ctx, fn)
		if err != nil {
			s.metrics.RecordTransaction("aborted")
			return err
		}

		err = s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx := s.newTx(ctx, func(ctx context.Context, key string) (string, error) {
				return rtx.Get(ctx, key).Result()
			})
			if err := fn(tx); err != nil {
				return err
			}
			for key := range tx.touched {
				if _, ok := keys[key]; !ok {
					return errKeysetChanged
				}
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return tx.apply(ctx, pipe, s.clock.Next())
			})
			return err
		}, mapKeys(keys)...)

		switch {
		case err == nil:
			s.metrics.RecordTransaction("committed")
			return nil
		case errors.Is(err, redis.TxFailedErr), errors.Is(err, errKeysetChanged):
			continue
		default:
			s.metrics.RecordTransaction("aborted")
			return err
		}
	}
	s.metrics.RecordTransaction("conflict")
	return fmt.Errorf("%w: gave up after %d attempts", docstore.ErrConflict, maxTxAttempts)
}

// discoverKeys dry-runs fn with plain reads to learn the watch set.
func (s *Store) discoverKeys(ctx context.Context, fn func(tx docstore.Tx) error) (map[string]struct{}, error) {
	tx := s.newTx(ctx, func(ctx context.Context, key string) (string, error) {
		return s.rdb.Get(ctx, key).Result()
	})
	if err := fn(tx); err != nil {
		return nil, err
	}
	if tx.readErr != nil {
		return nil, tx.readErr
	}
	return tx.touched, nil
}

func mapKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Subscribe opens a live query and immediately pushes the current state.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	sub := &subscriber{query: q}
	sub.feed = docstore.NewFeed(func() { s.removeSubscriber(sub) })
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	docs, err := s.materialize(ctx, q)
	if err != nil {
		s.removeSubscriber(sub)
		return nil, err
	}
	sub.feed.Push(docs)
	return sub.feed, nil
}

func (s *Store) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// materialize reads every document in the query's collection and filters and
// orders it client-side into a full snapshot.
func (s *Store) materialize(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	ids, err := s.rdb.SMembers(ctx, colKey(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(q.Collection, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	var docs []docstore.Document
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Id set and doc keys can briefly disagree between pipeline
			// steps; the next notification reconciles.
			continue
		}
		doc, err := unmarshalDoc(raw)
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

// Close stops the change listener and terminates all subscriptions. The
// underlying client remains open for its owner.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.listenCancel()
	s.failSubscribers(nil)
	return nil
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
