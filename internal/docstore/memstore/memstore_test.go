package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CRUD(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "posts", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "title": "first"}))

	doc, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["title"])

	// Returned documents are copies.
	doc["title"] = "mutated"
	doc2, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc2["title"])

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	// Deleting an absent document is a no-op.
	require.NoError(t, s.Delete(ctx, "posts", "p1"))
}

func TestStore_PutResolvesServerTimestamps(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{
		"id":        "p1",
		"createdAt": docstore.ServerTimestamp,
	}))
	require.NoError(t, s.Put(ctx, "posts", "p2", docstore.Document{
		"id":        "p2",
		"createdAt": docstore.ServerTimestamp,
	}))

	d1, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	d2, err := s.Get(ctx, "posts", "p2")
	require.NoError(t, err)

	ts1, ok := d1["createdAt"].(string)
	require.True(t, ok, "sentinel must be replaced with a string timestamp")
	ts2 := d2["createdAt"].(string)
	assert.Less(t, ts1, ts2, "later write must carry a strictly later timestamp")
}

func TestStore_TransactionAtomicity(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "profiles", "u1", docstore.Document{"id": "u1", "postsCount": float64(0)}))

	t.Run("failed body applies nothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
			tx.Put("posts", "p1", docstore.Document{"id": "p1"})
			tx.Increment("profiles", "u1", "postsCount", 1)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, "posts", "p1")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		profile, err := s.Get(ctx, "profiles", "u1")
		require.NoError(t, err)
		assert.Equal(t, float64(0), profile["postsCount"])
	})

	t.Run("commit applies everything", func(t *testing.T) {
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
		assert.Equal(t, float64(1), profile["postsCount"])
	})
}

func TestStore_TransactionReadsSeeOwnWrites(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Put("posts", "p1", docstore.Document{"id": "p1", "title": "staged"})
		doc, err := tx.Get(ctx, "posts", "p1")
		if err != nil {
			return err
		}
		assert.Equal(t, "staged", doc["title"])

		tx.Delete("posts", "p1")
		_, err = tx.Get(ctx, "posts", "p1")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_IncrementMissingFieldAndDoc(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "profiles", "u1", docstore.Document{"id": "u1"}))

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Increment("profiles", "u1", "followersCount", 2)
		tx.Increment("profiles", "ghost", "followersCount", -1)
		return nil
	})
	require.NoError(t, err)

	u1, err := s.Get(ctx, "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(2), u1["followersCount"])

	// Counters never clamp, even below zero.
	ghost, err := s.Get(ctx, "profiles", "ghost")
	require.NoError(t, err)
	assert.Equal(t, float64(-1), ghost["followersCount"])
}

func TestStore_SubscribePushesInitialSnapshot(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "authorId": "u1"}))
	require.NoError(t, s.Put(ctx, "posts", "p2", docstore.Document{"id": "p2", "authorId": "u2"}))

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts").Where("authorId", "u1"))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "p1", snap.Docs[0]["id"])
}

func TestStore_SubscribePushesOnChange(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts").OrderByDesc("createdAt"))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Docs)

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "createdAt": docstore.ServerTimestamp}))
	require.NoError(t, s.Put(ctx, "posts", "p2", docstore.Document{"id": "p2", "createdAt": docstore.ServerTimestamp}))

	// Both pushes may conflate; the final snapshot has both docs newest first.
	require.Eventually(t, func() bool {
		select {
		case snap = <-sub.Snapshots():
			return len(snap.Docs) == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "p2", snap.Docs[0]["id"])
	assert.Equal(t, "p1", snap.Docs[1]["id"])
}

func TestStore_UnrelatedCollectionDoesNotNotify(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts"))
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Snapshots() // initial

	require.NoError(t, s.Put(ctx, "comments", "c1", docstore.Document{"id": "c1"}))

	assert.Never(t, func() bool {
		select {
		case <-sub.Snapshots():
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestStore_NoSnapshotAfterUnsubscribe(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts"))
	require.NoError(t, err)

	// Leave the initial snapshot undelivered, then unsubscribe: it must be
	// discarded, not observable afterwards.
	sub.Unsubscribe()

	_, ok := <-sub.Snapshots()
	assert.False(t, ok)

	// Writes after unsubscribe must not reach the feed either.
	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1"}))
}

func TestStore_CloseTerminatesSubscriptionsAndRejectsOps(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts"))
	require.NoError(t, err)
	<-sub.Snapshots()

	require.NoError(t, s.Close())

	_, ok := <-sub.Snapshots()
	assert.False(t, ok)

	assert.ErrorIs(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1"}), docstore.ErrClosed)
	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrClosed)
	assert.ErrorIs(t, s.RunTransaction(ctx, func(docstore.Tx) error { return nil }), docstore.ErrClosed)
	_, err = s.Subscribe(ctx, docstore.NewQuery("posts"))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
