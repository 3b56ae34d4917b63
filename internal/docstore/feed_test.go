package docstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_ConflatesUndeliveredSnapshots(t *testing.T) {
	t.Parallel()

	f := NewFeed(nil)
	f.Push([]Document{{"id": "v1"}})
	f.Push([]Document{{"id": "v2"}})
	f.Push([]Document{{"id": "v3"}})

	snap := <-f.Snapshots()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "v3", snap.Docs[0]["id"])
}

func TestFeed_UnsubscribeDiscardsInFlightSnapshot(t *testing.T) {
	t.Parallel()

	f := NewFeed(nil)
	f.Push([]Document{{"id": "stale"}})
	f.Unsubscribe()

	// The buffered push must not be observable after Unsubscribe returns.
	snap, ok := <-f.Snapshots()
	assert.False(t, ok)
	assert.Nil(t, snap.Docs)

	// Pushes after close are dropped silently.
	f.Push([]Document{{"id": "late"}})
}

func TestFeed_UnsubscribeRunsCancel(t *testing.T) {
	t.Parallel()

	calls := 0
	f := NewFeed(func() { calls++ })
	f.Unsubscribe()
	f.Unsubscribe()
	assert.Equal(t, 2, calls, "onCancel runs per Unsubscribe call; dedupe belongs to the backend")
}

func TestFeed_FailDeliversErrorThenCloses(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("transport down")
	f := NewFeed(nil)
	f.Push([]Document{{"id": "old"}})
	f.Fail(wantErr)

	snap := <-f.Snapshots()
	assert.ErrorIs(t, snap.Err, wantErr)

	_, ok := <-f.Snapshots()
	assert.False(t, ok)
}
