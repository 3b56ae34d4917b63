package service

import (
	"context"
	"testing"

	"inkwell/internal/consistency"
	"inkwell/internal/docstore"
	"inkwell/internal/docstore/memstore"
	"inkwell/internal/models"
	"inkwell/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  docstore.Store
	engine *consistency.Engine
	subs   *subscription.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	return &testEnv{
		store:  store,
		engine: consistency.NewEngine(store),
		subs:   subscription.NewManager(store),
	}
}

func (e *testEnv) seedProfile(t *testing.T, id, name string) {
	t.Helper()
	err := e.store.Put(context.Background(), models.CollectionProfiles, id, docstore.Document{
		"id":              id,
		"name":            name,
		"postsCount":      float64(0),
		"followersCount":  float64(0),
		"followingCount":  float64(0),
		"profileComplete": true,
	})
	require.NoError(t, err)
}

// counter reads a numeric profile field, tolerating either representation the
// store may hold after increments.
func (e *testEnv) counter(t *testing.T, profileID, field string) int64 {
	t.Helper()
	doc, err := e.store.Get(context.Background(), models.CollectionProfiles, profileID)
	require.NoError(t, err)
	switch v := doc[field].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case nil:
		return 0
	default:
		t.Fatalf("unexpected counter type %T for %s.%s", v, profileID, field)
		return 0
	}
}

func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}
