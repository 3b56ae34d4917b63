package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"inkwell/internal/consistency"
	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/service"
	"inkwell/internal/session"
	"inkwell/internal/subscription"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	PostsPerUser    int
	CommentsPerPost int
	FollowsPerUser  int
	BookmarksEach   int
}

// Summary reports what a seeding run created.
type Summary struct {
	Profiles  int
	Posts     int
	Comments  int
	Follows   int
	Bookmarks int
}

// Seeder populates a store through the application services, so every
// denormalized counter is maintained by the same transactions production
// uses.
type Seeder struct {
	store   docstore.Store
	subs    *subscription.Manager
	engine  *consistency.Engine
	posts   *service.PostService
	comment *service.CommentService
	factory *Factory
}

// NewSeeder creates a Seeder over the given store.
func NewSeeder(store docstore.Store) *Seeder {
	subs := subscription.NewManager(store)
	engine := consistency.NewEngine(store)
	return &Seeder{
		store:   store,
		subs:    subs,
		engine:  engine,
		posts:   service.NewPostService(store, engine, subs),
		comment: service.NewCommentService(store, subs),
		factory: NewFactory(),
	}
}

// Run seeds the store per opts and returns a summary.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 10
	}
	if opts.PostsPerUser < 0 {
		opts.PostsPerUser = 0
	}

	summary := &Summary{}
	profiles := make([]*models.Profile, 0, opts.NumUsers)
	var allPosts []*models.Post

	for i := 0; i < opts.NumUsers; i++ {
		principal := s.factory.Principal()
		mgr := session.NewManager(s.store, session.NewStaticProvider(principal))
		profile, err := mgr.EnsureProfile(ctx, principal)
		if err != nil {
			return summary, fmt.Errorf("seed profile %d: %w", i, err)
		}
		profiles = append(profiles, profile)
		summary.Profiles++

		for j := 0; j < opts.PostsPerUser; j++ {
			post, err := s.posts.CreatePost(ctx, s.factory.PostInput(profile))
			if err != nil {
				return summary, fmt.Errorf("seed post for %s: %w", profile.ID, err)
			}
			allPosts = append(allPosts, post)
			summary.Posts++
		}
	}

	for _, post := range allPosts {
		for k := 0; k < opts.CommentsPerPost; k++ {
			author := profiles[rand.Intn(len(profiles))]
			if _, err := s.comment.AddComment(ctx, s.factory.CommentInput(post.ID, author)); err != nil {
				return summary, fmt.Errorf("seed comment on %s: %w", post.ID, err)
			}
			summary.Comments++
		}
	}

	if err := s.seedFollows(ctx, profiles, opts.FollowsPerUser, summary); err != nil {
		return summary, err
	}
	if err := s.seedBookmarks(ctx, profiles, allPosts, opts.BookmarksEach, summary); err != nil {
		return summary, err
	}

	log.Printf("seeded %d profiles, %d posts, %d comments, %d follows, %d bookmarks",
		summary.Profiles, summary.Posts, summary.Comments, summary.Follows, summary.Bookmarks)
	return summary, nil
}

func (s *Seeder) seedFollows(ctx context.Context, profiles []*models.Profile, perUser int, summary *Summary) error {
	if perUser <= 0 || len(profiles) < 2 {
		return nil
	}
	for _, follower := range profiles {
		svc := service.NewFollowService(s.store, s.engine, s.subs)
		if err := svc.Start(ctx, follower.ID); err != nil {
			return fmt.Errorf("start follow service for %s: %w", follower.ID, err)
		}
		for n := 0; n < perUser; n++ {
			target := profiles[rand.Intn(len(profiles))]
			if target.ID == follower.ID || svc.IsFollowing(target.ID) {
				continue
			}
			if _, err := svc.ToggleFollow(ctx, target.ID); err != nil {
				svc.Stop()
				return fmt.Errorf("seed follow %s -> %s: %w", follower.ID, target.ID, err)
			}
			summary.Follows++
		}
		svc.Stop()
	}
	return nil
}

func (s *Seeder) seedBookmarks(ctx context.Context, profiles []*models.Profile, posts []*models.Post, each int, summary *Summary) error {
	if each <= 0 || len(posts) == 0 {
		return nil
	}
	for _, user := range profiles {
		svc := service.NewBookmarkService(s.store, s.subs)
		if err := svc.Start(ctx, user.ID); err != nil {
			return fmt.Errorf("start bookmark service for %s: %w", user.ID, err)
		}
		for n := 0; n < each; n++ {
			post := posts[rand.Intn(len(posts))]
			if svc.IsBookmarked(post.ID) {
				continue
			}
			if _, err := svc.Toggle(ctx, post.ID); err != nil {
				svc.Stop()
				return fmt.Errorf("seed bookmark %s -> %s: %w", user.ID, post.ID, err)
			}
			summary.Bookmarks++
		}
		svc.Stop()
	}
	return nil
}
