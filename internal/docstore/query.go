package docstore

import (
	"sort"
	"time"
)

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection by equality filters, optionally
// ordered by a single field. Two queries with the same collection, filters and
// ordering identify the same feed.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// NewQuery returns a query over every document in the collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of the query with an added equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// OrderByAsc returns a copy of the query ordered ascending by field.
func (q Query) OrderByAsc(field string) Query {
	q.OrderBy = field
	q.Descending = false
	return q
}

// OrderByDesc returns a copy of the query ordered descending by field.
func (q Query) OrderByDesc(field string) Query {
	q.OrderBy = field
	q.Descending = true
	return q
}

// Matches reports whether the document satisfies every filter.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		v, ok := doc[f.Field]
		if !ok || !looseEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// Sort orders docs in place per the query ordering. Document id breaks ties
// so repeated materializations of the same state are identical.
func (q Query) Sort(docs []Document) {
	field := q.OrderBy
	sort.SliceStable(docs, func(i, j int) bool {
		var c int
		if field != "" {
			c = compareValues(docs[i][field], docs[j][field])
		}
		if c == 0 {
			c = compareValues(docs[i]["id"], docs[j]["id"])
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
}

// looseEqual compares filter values against JSON-roundtripped document values,
// where all numbers arrive as float64.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// compareValues orders two document field values. Numbers order numerically,
// timestamp strings chronologically, other strings lexicographically, and nil
// sorts first. Mixed types order by a fixed type rank to stay deterministic.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
				switch {
				case at.Before(bt):
					return -1
				case at.After(bt):
					return 1
				}
				return 0
			}
		}
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	}
	ar, br := typeRank(a), typeRank(b)
	switch {
	case ar < br:
		return -1
	case ar > br:
		return 1
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case bool:
		return 1
	case float64, float32, int, int32, int64, uint, uint64:
		return 2
	case string:
		return 3
	}
	return 4
}
