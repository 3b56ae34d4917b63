package seed

import (
	"context"
	"fmt"
	"os"

	"inkwell/internal/models"
	"inkwell/internal/service"
	"inkwell/internal/session"

	"gopkg.in/yaml.v3"
)

// Fixture is a declarative seed file. Posts carry a key so later entries can
// reference them; profiles are referenced by their id.
type Fixture struct {
	Profiles []ProfileFixture `yaml:"profiles"`
	Posts    []PostFixture    `yaml:"posts"`
	Comments []CommentFixture `yaml:"comments"`
	Follows  []FollowFixture  `yaml:"follows"`
}

type ProfileFixture struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Bio   string `yaml:"bio"`
}

type PostFixture struct {
	Key     string `yaml:"key"`
	Author  string `yaml:"author"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	Excerpt string `yaml:"excerpt"`
}

type CommentFixture struct {
	Post    string `yaml:"post"`
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

type FollowFixture struct {
	Follower  string `yaml:"follower"`
	Following string `yaml:"following"`
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

// ApplyFixture seeds the store from a parsed fixture, again through the real
// services.
func (s *Seeder) ApplyFixture(ctx context.Context, fx *Fixture) (*Summary, error) {
	summary := &Summary{}
	profilesByID := make(map[string]*models.Profile, len(fx.Profiles))
	postKeys := make(map[string]string, len(fx.Posts))

	for _, pf := range fx.Profiles {
		principal := &models.Principal{ID: pf.ID, Name: pf.Name, Email: pf.Email}
		mgr := session.NewManager(s.store, session.NewStaticProvider(principal))
		profile, err := mgr.EnsureProfile(ctx, principal)
		if err != nil {
			return summary, fmt.Errorf("fixture profile %s: %w", pf.ID, err)
		}
		profilesByID[pf.ID] = profile
		summary.Profiles++
	}

	for _, pf := range fx.Posts {
		author, ok := profilesByID[pf.Author]
		if !ok {
			return summary, fmt.Errorf("fixture post %q references unknown author %q", pf.Key, pf.Author)
		}
		post, err := s.posts.CreatePost(ctx, service.CreatePostInput{
			AuthorID:   author.ID,
			AuthorName: author.Name,
			Title:      pf.Title,
			Content:    pf.Content,
			Excerpt:    pf.Excerpt,
		})
		if err != nil {
			return summary, fmt.Errorf("fixture post %q: %w", pf.Key, err)
		}
		if pf.Key != "" {
			postKeys[pf.Key] = post.ID
		}
		summary.Posts++
	}

	for _, cf := range fx.Comments {
		author, ok := profilesByID[cf.Author]
		if !ok {
			return summary, fmt.Errorf("fixture comment references unknown author %q", cf.Author)
		}
		postID, ok := postKeys[cf.Post]
		if !ok {
			return summary, fmt.Errorf("fixture comment references unknown post %q", cf.Post)
		}
		if _, err := s.comment.AddComment(ctx, service.AddCommentInput{
			PostID:     postID,
			AuthorID:   author.ID,
			AuthorName: author.Name,
			Content:    cf.Content,
		}); err != nil {
			return summary, fmt.Errorf("fixture comment on %q: %w", cf.Post, err)
		}
		summary.Comments++
	}

	for _, ff := range fx.Follows {
		svc := service.NewFollowService(s.store, s.engine, s.subs)
		if err := svc.Start(ctx, ff.Follower); err != nil {
			return summary, fmt.Errorf("fixture follow start %s: %w", ff.Follower, err)
		}
		if !svc.IsFollowing(ff.Following) {
			if _, err := svc.ToggleFollow(ctx, ff.Following); err != nil {
				svc.Stop()
				return summary, fmt.Errorf("fixture follow %s -> %s: %w", ff.Follower, ff.Following, err)
			}
			summary.Follows++
		}
		svc.Stop()
	}

	return summary, nil
}
