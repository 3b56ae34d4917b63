package service

import (
	"context"
	"errors"
	"strings"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/subscription"

	"github.com/google/uuid"
)

type CommentService struct {
	store  docstore.Store
	subs   *subscription.Manager
	logger *observability.StructuredLogger
}

type AddCommentInput struct {
	PostID       string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Content      string
}

func NewCommentService(store docstore.Store, subs *subscription.Manager) *CommentService {
	return &CommentService{
		store:  store,
		subs:   subs,
		logger: observability.NewStructuredLogger(),
	}
}

// AddComment appends a comment to a post. The creation timestamp is assigned
// by the store, so comments sort in commit order regardless of client clocks.
func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (*models.Comment, error) {
	const maxContentLen = 10000

	if in.AuthorID == "" {
		return nil, models.NewUnauthorizedError("Sign in to comment")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Comment too long (max 10000 characters)")
	}

	if _, err := s.store.Get(ctx, models.CollectionPosts, in.PostID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("post", in.PostID)
		}
		return nil, models.NewUnavailableError(err)
	}

	comment := &models.Comment{
		ID:           uuid.NewString(),
		PostID:       in.PostID,
		AuthorID:     in.AuthorID,
		AuthorName:   in.AuthorName,
		AuthorAvatar: in.AuthorAvatar,
		Content:      in.Content,
	}
	doc, err := docstore.Encode(comment)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	doc["createdAt"] = docstore.ServerTimestamp

	if err := s.store.Put(ctx, models.CollectionComments, comment.ID, doc); err != nil {
		return nil, models.NewUnavailableError(err)
	}

	s.logger.LogServiceCall(ctx, "comment", "add", map[string]interface{}{
		"id":     comment.ID,
		"post":   in.PostID,
		"author": in.AuthorID,
	})
	return comment, nil
}

// SubscribeForPost opens the comment stream for one post, oldest first.
func (s *CommentService) SubscribeForPost(ctx context.Context, postID string) (*subscription.Stream[models.Comment], error) {
	return subscription.Open[models.Comment](ctx, s.subs,
		docstore.NewQuery(models.CollectionComments).Where("postId", postID).OrderByAsc("createdAt"))
}
