package redistore

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell/internal/docstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := New(rdb)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_CRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "posts", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "title": "first"}))

	doc, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["title"])

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
}

func TestStore_PutResolvesServerTimestamps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{
		"id":        "p1",
		"createdAt": docstore.ServerTimestamp,
	}))
	doc, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	_, isString := doc["createdAt"].(string)
	assert.True(t, isString, "sentinel must be replaced before storage")
}

func TestStore_SubscribeInitialAndRefresh(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "authorId": "u1"}))

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts").Where("authorId", "u1"))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "p1", snap.Docs[0]["id"])

	require.NoError(t, s.Put(ctx, "posts", "p2", docstore.Document{"id": "p2", "authorId": "u1"}))

	// The pub/sub notification re-materializes the query asynchronously.
	assert.Eventually(t, func() bool {
		select {
		case snap = <-sub.Snapshots():
			return len(snap.Docs) == 2
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestStore_SubscribeIgnoresOtherCollections(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts"))
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Snapshots()

	require.NoError(t, s.Put(ctx, "comments", "c1", docstore.Document{"id": "c1"}))

	assert.Never(t, func() bool {
		select {
		case <-sub.Snapshots():
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStore_RunTransaction_CommitsAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "profiles", "u1", docstore.Document{"id": "u1", "postsCount": float64(1)}))

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Put("posts", "p1", docstore.Document{"id": "p1", "createdAt": docstore.ServerTimestamp})
		tx.Increment("profiles", "u1", "postsCount", 1)
		return nil
	})
	require.NoError(t, err)

	post, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.IsType(t, "", post["createdAt"])

	profile, err := s.Get(ctx, "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(2), profile["postsCount"])
}

func TestStore_RunTransaction_BodyErrorAppliesNothing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Put("posts", "p1", docstore.Document{"id": "p1"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_RunTransaction_DeleteAbsentIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(ctx, "follows", "ghost"); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
		tx.Delete("follows", "ghost")
		return nil
	})
	require.NoError(t, err)
}

func TestStore_RunTransaction_IncrementCreatesDoc(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Increment("profiles", "fresh", "followersCount", 1)
		return nil
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "profiles", "fresh")
	require.NoError(t, err)
	assert.Equal(t, float64(1), doc["followersCount"])
}

func TestStore_CloseEndsSubscriptions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts"))
	require.NoError(t, err)
	<-sub.Snapshots()

	require.NoError(t, s.Close())

	assert.Eventually(t, func() bool {
		_, ok := <-sub.Snapshots()
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, err = s.Subscribe(ctx, docstore.NewQuery("posts"))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestOpen_InvalidAddr(t *testing.T) {
	_, err := Open("127.0.0.1:1")
	assert.Error(t, err)
}

func TestStore_RunTransaction_IncrementReadFailureAborts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := New(rdb)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// Corrupt the counter target's key out-of-band: reads against it now fail
	// with a type error instead of redis.Nil.
	_, err = mr.Lpush(docKey("profiles", "u1"), "junk")
	require.NoError(t, err)

	err = s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Put("posts", "p1", docstore.Document{"id": "p1"})
		tx.Increment("profiles", "u1", "postsCount", 1)
		return nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, docstore.ErrNotFound)
	assert.NotErrorIs(t, err, docstore.ErrConflict)

	// Nothing committed: the counter target was not replaced by a bare
	// counter document and the post was not written.
	assert.Equal(t, "list", rdb.Type(ctx, docKey("profiles", "u1")).Val())
	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
