package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Matches(t *testing.T) {
	t.Parallel()

	doc := Document{"id": "p1", "authorId": "u1", "likes": float64(3)}

	t.Run("no filters match everything", func(t *testing.T) {
		t.Parallel()
		assert.True(t, NewQuery("posts").Matches(doc))
	})

	t.Run("equality filter", func(t *testing.T) {
		t.Parallel()
		assert.True(t, NewQuery("posts").Where("authorId", "u1").Matches(doc))
		assert.False(t, NewQuery("posts").Where("authorId", "u2").Matches(doc))
	})

	t.Run("numeric filter values match json floats", func(t *testing.T) {
		t.Parallel()
		assert.True(t, NewQuery("posts").Where("likes", 3).Matches(doc))
		assert.True(t, NewQuery("posts").Where("likes", int64(3)).Matches(doc))
		assert.False(t, NewQuery("posts").Where("likes", 4).Matches(doc))
	})

	t.Run("missing field never matches", func(t *testing.T) {
		t.Parallel()
		assert.False(t, NewQuery("posts").Where("missing", "x").Matches(doc))
	})

	t.Run("multiple filters are conjunctive", func(t *testing.T) {
		t.Parallel()
		q := NewQuery("posts").Where("authorId", "u1").Where("likes", 3)
		assert.True(t, q.Matches(doc))
		assert.False(t, q.Where("id", "p2").Matches(doc))
	})
}

func TestQuery_Sort_Timestamps(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	docs := []Document{
		{"id": "b", "createdAt": FormatTimestamp(base.Add(2 * time.Second))},
		{"id": "a", "createdAt": FormatTimestamp(base)},
		{"id": "c", "createdAt": FormatTimestamp(base.Add(time.Second))},
	}

	asc := NewQuery("comments").OrderByAsc("createdAt")
	asc.Sort(docs)
	assert.Equal(t, "a", docs[0]["id"])
	assert.Equal(t, "c", docs[1]["id"])
	assert.Equal(t, "b", docs[2]["id"])

	desc := NewQuery("posts").OrderByDesc("createdAt")
	desc.Sort(docs)
	assert.Equal(t, "b", docs[0]["id"])
	assert.Equal(t, "c", docs[1]["id"])
	assert.Equal(t, "a", docs[2]["id"])
}

func TestQuery_Sort_TieBreaksOnID(t *testing.T) {
	t.Parallel()

	ts := FormatTimestamp(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	docs := []Document{
		{"id": "z", "createdAt": ts},
		{"id": "a", "createdAt": ts},
		{"id": "m", "createdAt": ts},
	}
	NewQuery("posts").OrderByAsc("createdAt").Sort(docs)
	assert.Equal(t, "a", docs[0]["id"])
	assert.Equal(t, "m", docs[1]["id"])
	assert.Equal(t, "z", docs[2]["id"])
}

func TestQuery_Sort_NilSortsFirst(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{"id": "a", "rank": float64(1)},
		{"id": "b"},
	}
	NewQuery("posts").OrderByAsc("rank").Sort(docs)
	assert.Equal(t, "b", docs[0]["id"])
}

func TestDocument_Clone(t *testing.T) {
	t.Parallel()

	orig := Document{
		"id":     "x",
		"nested": map[string]any{"k": "v"},
		"list":   []any{"a", "b"},
	}
	clone := orig.Clone()
	clone["id"] = "y"
	clone["nested"].(map[string]any)["k"] = "changed"
	clone["list"].([]any)[0] = "changed"

	assert.Equal(t, "x", orig["id"])
	assert.Equal(t, "v", orig["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", orig["list"].([]any)[0])
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	type entity struct {
		ID    string `json:"id"`
		Count int64  `json:"count"`
	}

	doc, err := Encode(entity{ID: "e1", Count: 7})
	require.NoError(t, err)
	assert.Equal(t, "e1", doc["id"])
	assert.Equal(t, float64(7), doc["count"])

	var back entity
	require.NoError(t, Decode(doc, &back))
	assert.Equal(t, entity{ID: "e1", Count: 7}, back)
}
