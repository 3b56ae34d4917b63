package docstore

import (
	"sync"
	"time"
)

// timestampLayout is fixed-width so encoded timestamps also order correctly
// under plain string comparison.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Clock assigns server timestamps. Assigned values are strictly increasing
// even when the wall clock stalls or steps backwards.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// Next returns the next server timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

// FormatTimestamp renders a server timestamp for document storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ResolveTimestamps replaces every ServerTimestamp sentinel in the document
// with the formatted timestamp ts, returning the same document.
func ResolveTimestamps(doc Document, ts time.Time) Document {
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			doc[k] = FormatTimestamp(ts)
		}
	}
	return doc
}
