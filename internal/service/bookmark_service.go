package service

import (
	"context"
	"errors"
	"fmt"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/relation"
	"inkwell/internal/subscription"
)

// BookmarkService toggles saved posts for one signed-in user. Bookmark ids
// are deterministic (userID_postID), so a racing double-add overwrites one
// document instead of creating two.
type BookmarkService struct {
	store  docstore.Store
	subs   *subscription.Manager
	logger *observability.StructuredLogger

	userID     string
	reconciler *relation.Reconciler
	membership docstore.Subscription
}

func NewBookmarkService(store docstore.Store, subs *subscription.Manager) *BookmarkService {
	return &BookmarkService{
		store:  store,
		subs:   subs,
		logger: observability.NewStructuredLogger(),
	}
}

// BookmarkID returns the deterministic document id for a (user, post) pair.
func BookmarkID(userID, postID string) string {
	return fmt.Sprintf("%s_%s", userID, postID)
}

// Start binds the service to userID and begins following their bookmark set.
// Must be called before Toggle.
func (s *BookmarkService) Start(ctx context.Context, userID string) error {
	if s.membership != nil {
		return models.NewValidationError("Bookmark service already started")
	}
	s.userID = userID
	s.reconciler = relation.NewReconciler(relation.Config{
		Relation:    "bookmark",
		Collection:  models.CollectionBookmarks,
		OwnerField:  "userId",
		TargetField: "postId",
	}, userID, s.addBookmark, s.removeBookmark)

	sub, err := s.subs.Raw(ctx, docstore.NewQuery(models.CollectionBookmarks).Where("userId", userID))
	if err != nil {
		return models.NewUnavailableError(err)
	}
	s.membership = sub

	go func() {
		for snap := range sub.Snapshots() {
			if snap.Err != nil {
				return
			}
			s.reconciler.ApplySnapshot(snap.Docs)
		}
	}()
	return nil
}

// Stop releases the membership subscription.
func (s *BookmarkService) Stop() {
	if s.membership != nil {
		s.membership.Unsubscribe()
		s.membership = nil
	}
}

// Toggle bookmarks postID when it is not currently bookmarked and removes the
// bookmark when it is. Returns true when the post ended up bookmarked.
func (s *BookmarkService) Toggle(ctx context.Context, postID string) (bool, error) {
	if s.reconciler == nil {
		return false, models.NewUnauthorizedError("Sign in to bookmark posts")
	}
	added, err := s.reconciler.Toggle(ctx, postID)
	if err != nil {
		return false, err
	}
	action := "remove"
	if added {
		action = "add"
	}
	s.logger.LogServiceCall(ctx, "bookmark", action, map[string]interface{}{
		"user": s.userID,
		"post": postID,
	})
	return added, nil
}

// IsBookmarked reports the observed membership for postID.
func (s *BookmarkService) IsBookmarked(postID string) bool {
	return s.reconciler != nil && s.reconciler.IsMember(postID)
}

// SubscribeForUser opens the bookmark list for display, newest first.
func (s *BookmarkService) SubscribeForUser(ctx context.Context, userID string) (*subscription.Stream[models.Bookmark], error) {
	return subscription.Open[models.Bookmark](ctx, s.subs,
		docstore.NewQuery(models.CollectionBookmarks).Where("userId", userID).OrderByDesc("createdAt"))
}

// addBookmark captures the post's display fields at bookmark time. They are
// not kept in sync if the post changes later.
func (s *BookmarkService) addBookmark(ctx context.Context, ownerID, postID string) (string, error) {
	postDoc, err := s.store.Get(ctx, models.CollectionPosts, postID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", models.NewNotFoundError("post", postID)
		}
		return "", models.NewUnavailableError(err)
	}
	var post models.Post
	if err := docstore.Decode(postDoc, &post); err != nil {
		return "", models.NewInternalError(err)
	}

	id := BookmarkID(ownerID, postID)
	bookmark := &models.Bookmark{
		ID:          id,
		UserID:      ownerID,
		PostID:      postID,
		PostTitle:   post.Title,
		PostAuthor:  post.Author,
		PostContent: post.Content,
		PostExcerpt: post.Excerpt,
	}
	doc, err := docstore.Encode(bookmark)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	doc["createdAt"] = docstore.ServerTimestamp

	if err := s.store.Put(ctx, models.CollectionBookmarks, id, doc); err != nil {
		return "", models.NewUnavailableError(err)
	}
	return id, nil
}

func (s *BookmarkService) removeBookmark(ctx context.Context, docID, _, _ string) error {
	if err := s.store.Delete(ctx, models.CollectionBookmarks, docID); err != nil {
		return models.NewUnavailableError(err)
	}
	return nil
}
