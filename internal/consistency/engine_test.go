package consistency

import (
	"context"
	"errors"
	"testing"

	"inkwell/internal/docstore"
	"inkwell/internal/docstore/memstore"
	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeStub is a stub for docstore.Store; only RunTransaction matters here.
type storeStub struct {
	docstore.Store
	runFn func(ctx context.Context, fn func(tx docstore.Tx) error) error
}

func (s *storeStub) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return s.runFn(ctx, fn)
}

func TestEngine_CreateWithCounters(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, models.CollectionProfiles, "u1",
		docstore.Document{"id": "u1", "postsCount": float64(0)}))

	e := NewEngine(store)
	err := e.CreateWithCounters(ctx, models.CollectionPosts, "p1",
		docstore.Document{"id": "p1", "authorId": "u1"},
		CounterDelta{Collection: models.CollectionProfiles, ID: "u1", Field: "postsCount", Delta: 1})
	require.NoError(t, err)

	post, err := store.Get(ctx, models.CollectionPosts, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", post["authorId"])

	profile, err := store.Get(ctx, models.CollectionProfiles, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), profile["postsCount"])
}

func TestEngine_DeleteWithCounters(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, models.CollectionProfiles, "u1",
		docstore.Document{"id": "u1", "postsCount": float64(1)}))
	require.NoError(t, store.Put(ctx, models.CollectionPosts, "p1",
		docstore.Document{"id": "p1", "authorId": "u1"}))

	e := NewEngine(store)
	delta := CounterDelta{Collection: models.CollectionProfiles, ID: "u1", Field: "postsCount", Delta: -1}

	require.NoError(t, e.DeleteWithCounters(ctx, models.CollectionPosts, "p1", delta))

	_, err := store.Get(ctx, models.CollectionPosts, "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	profile, err := store.Get(ctx, models.CollectionProfiles, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), profile["postsCount"])

	// Deleting again is a no-op success and must not move the counter.
	require.NoError(t, e.DeleteWithCounters(ctx, models.CollectionPosts, "p1", delta))
	profile, err = store.Get(ctx, models.CollectionProfiles, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), profile["postsCount"])
}

func TestEngine_ConflictMapsToRetryableError(t *testing.T) {
	t.Parallel()

	stub := &storeStub{runFn: func(context.Context, func(tx docstore.Tx) error) error {
		return docstore.ErrConflict
	}}
	e := NewEngine(stub)

	err := e.CreateWithCounters(context.Background(), models.CollectionPosts, "p1", docstore.Document{"id": "p1"})
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.True(t, appErr.Retryable())
}

func TestEngine_TransportErrorMapsToUnavailable(t *testing.T) {
	t.Parallel()

	stub := &storeStub{runFn: func(context.Context, func(tx docstore.Tx) error) error {
		return errors.New("connection refused")
	}}
	e := NewEngine(stub)

	err := e.DeleteWithCounters(context.Background(), models.CollectionPosts, "p1")
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAVAILABLE", appErr.Code)
	assert.True(t, appErr.Retryable())
}

func TestEngine_AppErrorsPassThrough(t *testing.T) {
	t.Parallel()

	want := models.NewValidationError("bad input")
	stub := &storeStub{runFn: func(ctx context.Context, fn func(tx docstore.Tx) error) error {
		return want
	}}
	e := NewEngine(stub)

	err := e.Run(context.Background(), func(docstore.Tx) error { return want })
	assert.Same(t, want, err)
}
