package docstore

import "sync"

// Feed is the Subscription implementation shared by the store backends. It
// conflates pushes: because every snapshot fully supersedes the previous one,
// an undelivered stale snapshot is replaced rather than queued, so a slow
// consumer never blocks the store's notification path.
type Feed struct {
	mu       sync.Mutex
	ch       chan Snapshot
	closed   bool
	onCancel func()
}

// NewFeed returns a Feed whose Unsubscribe also runs onCancel (used by
// backends to deregister the feed). onCancel may be nil.
func NewFeed(onCancel func()) *Feed {
	return &Feed{
		ch:       make(chan Snapshot, 1),
		onCancel: onCancel,
	}
}

// Snapshots returns the snapshot channel. It is closed after Unsubscribe or
// after an error snapshot has been delivered.
func (f *Feed) Snapshots() <-chan Snapshot { return f.ch }

// Push delivers a snapshot, replacing any undelivered one.
func (f *Feed) Push(docs []Document) {
	f.deliver(Snapshot{Docs: docs})
}

// Fail delivers a terminal error snapshot and closes the feed.
func (f *Feed) Fail(err error) {
	f.deliver(Snapshot{Err: err})
	f.shutdown(false)
}

func (f *Feed) deliver(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- s:
	default:
		select {
		case <-f.ch:
		default:
		}
		f.ch <- s
	}
}

// Unsubscribe closes the feed. Any undelivered snapshot is discarded, so no
// snapshot can be observed after Unsubscribe returns.
func (f *Feed) Unsubscribe() {
	f.shutdown(true)
	if f.onCancel != nil {
		f.onCancel()
	}
}

// Close terminates the feed without an error snapshot, e.g. on store shutdown.
func (f *Feed) Close() { f.shutdown(true) }

func (f *Feed) shutdown(drain bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if drain {
		select {
		case <-f.ch:
		default:
		}
	}
	close(f.ch)
}
