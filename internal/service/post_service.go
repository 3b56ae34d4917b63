// Package service implements the application operations over the document
// store: publishing and deleting content, commenting, bookmarking, following
// and profile edits. Services own validation and error mapping; atomicity
// lives in the consistency engine underneath them.
package service

import (
	"context"
	"errors"
	"strings"

	"inkwell/internal/consistency"
	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/subscription"

	"github.com/google/uuid"
)

type PostService struct {
	store  docstore.Store
	engine *consistency.Engine
	subs   *subscription.Manager
	logger *observability.StructuredLogger
}

type CreatePostInput struct {
	AuthorID   string
	AuthorName string
	Title      string
	Content    string
	Excerpt    string
}

type DeletePostInput struct {
	RequesterID string
	PostID      string
}

func NewPostService(store docstore.Store, engine *consistency.Engine, subs *subscription.Manager) *PostService {
	return &PostService{
		store:  store,
		engine: engine,
		subs:   subs,
		logger: observability.NewStructuredLogger(),
	}
}

// CreatePost publishes a post and increments the author's postsCount in the
// same transaction. The author display name is captured as-is and never
// synced with later profile renames.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	const maxTitleLen = 300
	const maxContentLen = 50000

	if in.AuthorID == "" {
		return nil, models.NewUnauthorizedError("Sign in to publish a post")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(in.Title) > maxTitleLen {
		return nil, models.NewValidationError("Title too long (max 300 characters)")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 50000 characters)")
	}

	post := &models.Post{
		ID:       uuid.NewString(),
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
		Excerpt:  models.DeriveExcerpt(in.Excerpt, in.Content),
		AuthorID: in.AuthorID,
		Author:   in.AuthorName,
	}
	doc, err := docstore.Encode(post)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	doc["createdAt"] = docstore.ServerTimestamp
	doc["updatedAt"] = docstore.ServerTimestamp

	err = s.engine.CreateWithCounters(ctx, models.CollectionPosts, post.ID, doc,
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         in.AuthorID,
			Field:      "postsCount",
			Delta:      1,
		})
	if err != nil {
		return nil, err
	}

	s.logger.LogServiceCall(ctx, "post", "create", map[string]interface{}{
		"id":     post.ID,
		"author": in.AuthorID,
	})
	return post, nil
}

// GetPost fetches a single post by id.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	doc, err := s.store.Get(ctx, models.CollectionPosts, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("post", id)
		}
		return nil, models.NewUnavailableError(err)
	}
	var post models.Post
	if err := docstore.Decode(doc, &post); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

// DeletePost removes a post and decrements its author's postsCount in the
// same transaction. Only the author may delete their post. Deleting a post
// that is already gone is a no-op success and moves no counters.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	doc, err := s.store.Get(ctx, models.CollectionPosts, in.PostID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return models.NewUnavailableError(err)
	}
	authorID, _ := doc["authorId"].(string)
	if authorID != in.RequesterID {
		return models.NewUnauthorizedError("Only the author can delete this post")
	}

	err = s.engine.DeleteWithCounters(ctx, models.CollectionPosts, in.PostID,
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         authorID,
			Field:      "postsCount",
			Delta:      -1,
		})
	if err != nil {
		return err
	}

	s.logger.LogServiceCall(ctx, "post", "delete", map[string]interface{}{
		"id":     in.PostID,
		"author": authorID,
	})
	return nil
}

// SubscribeFeed opens the global post feed, newest first.
func (s *PostService) SubscribeFeed(ctx context.Context) (*subscription.Stream[models.Post], error) {
	return subscription.Open[models.Post](ctx, s.subs,
		docstore.NewQuery(models.CollectionPosts).OrderByDesc("createdAt"))
}

// SubscribeByAuthor opens the post feed for one author, newest first.
func (s *PostService) SubscribeByAuthor(ctx context.Context, authorID string) (*subscription.Stream[models.Post], error) {
	return subscription.Open[models.Post](ctx, s.subs,
		docstore.NewQuery(models.CollectionPosts).Where("authorId", authorID).OrderByDesc("createdAt"))
}
