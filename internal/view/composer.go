// Package view merges independent live streams into composed read models.
// There is no cross-stream transactional consistency: each constituent feed
// pushes on its own schedule and the merged view is recomputed from whatever
// each stream last delivered.
package view

import (
	"context"
	"sync"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/subscription"
)

// ProfileView is the live composition of a profile with its owned posts and
// follow edges. PostsCount comes from the profile document's denormalized
// counter and may transiently disagree with len(Posts) until both feeds have
// caught up.
type ProfileView struct {
	Profile    *models.Profile
	Posts      []models.Post
	PostsCount int64
	Followers  []models.Follow
	Following  []models.Follow
}

// ViewSnapshot is one recomputation of a composed view. Err set means the
// stream is ending.
type ViewSnapshot struct {
	View ProfileView
	Err  error
}

// Composer builds live composed views over a subscription manager.
type Composer struct {
	subs   *subscription.Manager
	logger *observability.StreamLogger
}

func NewComposer(subs *subscription.Manager) *Composer {
	return &Composer{
		subs:   subs,
		logger: observability.NewStreamLogger("view composer"),
	}
}

// ProfileViewStream delivers recomputed ProfileViews. Close releases all
// constituent subscriptions; after Close returns no snapshot is observable.
type ProfileViewStream struct {
	ch chan ViewSnapshot

	mu      sync.Mutex
	closed  bool
	once    sync.Once
	cancels []func()
}

func (s *ProfileViewStream) Snapshots() <-chan ViewSnapshot { return s.ch }

func (s *ProfileViewStream) Close() { s.stop(true) }

// stop mirrors Close but optionally keeps a buffered terminal error snapshot
// readable when the stream ends itself.
func (s *ProfileViewStream) stop(drain bool) {
	s.once.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
		s.mu.Lock()
		s.closed = true
		if drain {
			select {
			case <-s.ch:
			default:
			}
		}
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *ProfileViewStream) deliver(snap ViewSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// ComposeProfileView opens the four constituent streams for profileID and
// recomputes the merged view whenever any one of them pushes. A terminal
// error on any constituent ends the composed stream with that error.
func (c *Composer) ComposeProfileView(ctx context.Context, profileID string) (*ProfileViewStream, error) {
	profileStream, err := subscription.Open[models.Profile](ctx, c.subs,
		docstore.NewQuery(models.CollectionProfiles).Where("id", profileID))
	if err != nil {
		return nil, err
	}
	postStream, err := subscription.Open[models.Post](ctx, c.subs,
		docstore.NewQuery(models.CollectionPosts).Where("authorId", profileID).OrderByDesc("createdAt"))
	if err != nil {
		profileStream.Unsubscribe()
		return nil, err
	}
	followerStream, err := subscription.Open[models.Follow](ctx, c.subs,
		docstore.NewQuery(models.CollectionFollows).Where("followingId", profileID))
	if err != nil {
		profileStream.Unsubscribe()
		postStream.Unsubscribe()
		return nil, err
	}
	followingStream, err := subscription.Open[models.Follow](ctx, c.subs,
		docstore.NewQuery(models.CollectionFollows).Where("followerId", profileID))
	if err != nil {
		profileStream.Unsubscribe()
		postStream.Unsubscribe()
		followerStream.Unsubscribe()
		return nil, err
	}

	out := &ProfileViewStream{
		ch: make(chan ViewSnapshot, 1),
		cancels: []func(){
			profileStream.Unsubscribe,
			postStream.Unsubscribe,
			followerStream.Unsubscribe,
			followingStream.Unsubscribe,
		},
	}

	go c.pump(ctx, profileID, out, profileStream, postStream, followerStream, followingStream)
	return out, nil
}

func (c *Composer) pump(
	ctx context.Context,
	profileID string,
	out *ProfileViewStream,
	profiles *subscription.Stream[models.Profile],
	posts *subscription.Stream[models.Post],
	followers *subscription.Stream[models.Follow],
	following *subscription.Stream[models.Follow],
) {
	var view ProfileView
	fail := func(err error) {
		c.logger.LogError(ctx, models.CollectionProfiles, err)
		out.deliver(ViewSnapshot{Err: err})
		out.stop(false)
	}
	recompute := func() {
		out.deliver(ViewSnapshot{View: view})
	}

	profileCh := profiles.Snapshots()
	postCh := posts.Snapshots()
	followerCh := followers.Snapshots()
	followingCh := following.Snapshots()

	for {
		select {
		case snap, ok := <-profileCh:
			if !ok {
				out.Close()
				return
			}
			if snap.Err != nil {
				fail(snap.Err)
				return
			}
			view.Profile = nil
			view.PostsCount = 0
			if len(snap.Items) > 0 {
				p := snap.Items[0]
				view.Profile = &p
				view.PostsCount = p.PostsCount
			}
			recompute()
		case snap, ok := <-postCh:
			if !ok {
				out.Close()
				return
			}
			if snap.Err != nil {
				fail(snap.Err)
				return
			}
			view.Posts = snap.Items
			recompute()
		case snap, ok := <-followerCh:
			if !ok {
				out.Close()
				return
			}
			if snap.Err != nil {
				fail(snap.Err)
				return
			}
			view.Followers = snap.Items
			recompute()
		case snap, ok := <-followingCh:
			if !ok {
				out.Close()
				return
			}
			if snap.Err != nil {
				fail(snap.Err)
				return
			}
			view.Following = snap.Items
			recompute()
		case <-ctx.Done():
			out.Close()
			return
		}
	}
}

// Snapshot of who the profile follows, by id, for quick membership checks.
func FollowingIDs(view *ProfileView) []string {
	ids := make([]string, 0, len(view.Following))
	for _, f := range view.Following {
		ids = append(ids, f.FollowingID)
	}
	return ids
}
