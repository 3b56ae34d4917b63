package gormstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"inkwell/internal/docstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "posts", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "title": "first"}))

	doc, err := s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["title"])

	// Put with the same id overwrites.
	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "title": "second"}))
	doc, err = s.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "second", doc["title"])

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
	_, err = s.Get(ctx, "posts", "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "posts", "p1"))
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "posts", "x", docstore.Document{"id": "x", "kind": "post"}))
	require.NoError(t, s.Put(ctx, "comments", "x", docstore.Document{"id": "x", "kind": "comment"}))

	post, err := s.Get(ctx, "posts", "x")
	require.NoError(t, err)
	assert.Equal(t, "post", post["kind"])

	comment, err := s.Get(ctx, "comments", "x")
	require.NoError(t, err)
	assert.Equal(t, "comment", comment["kind"])
}

func TestStore_TransactionRollsBackOnBodyError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "profiles", "u1", docstore.Document{"id": "u1", "postsCount": float64(0)}))

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
}

func TestStore_TransactionCommitsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "profiles", "u1", docstore.Document{"id": "u1", "postsCount": float64(0)}))

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
}

func TestStore_SubscribeSeesOwnCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, docstore.NewQuery("posts").OrderByAsc("createdAt"))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Docs)

	require.NoError(t, s.Put(ctx, "posts", "p1", docstore.Document{"id": "p1", "createdAt": docstore.ServerTimestamp}))

	snap = <-sub.Snapshots()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "p1", snap.Docs[0]["id"])
}

func TestStore_GetWrapsDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	s := New(gormDB)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents"`)).
		WillReturnError(errors.New("connection reset"))

	_, err = s.Get(context.Background(), "posts", "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, docstore.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunTransaction_IncrementReadFailureAborts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	s := New(gormDB)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents"`)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	// A transient read failure on the counter target must roll the whole
	// transaction back instead of replacing the target with a bare counter
	// document.
	err = s.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		tx.Put("posts", "p1", docstore.Document{"id": "p1"})
		tx.Increment("profiles", "u1", "postsCount", 1)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NotErrorIs(t, err, docstore.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
