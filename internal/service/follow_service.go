package service

import (
	"context"
	"fmt"

	"inkwell/internal/consistency"
	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/relation"
	"inkwell/internal/subscription"
)

// FollowService toggles follow edges for one signed-in user. Every edge
// change is a three-way transaction: the edge document plus followingCount on
// the follower and followersCount on the target move together.
type FollowService struct {
	store  docstore.Store
	engine *consistency.Engine
	subs   *subscription.Manager
	logger *observability.StructuredLogger

	userID     string
	reconciler *relation.Reconciler
	membership docstore.Subscription
}

func NewFollowService(store docstore.Store, engine *consistency.Engine, subs *subscription.Manager) *FollowService {
	return &FollowService{
		store:  store,
		engine: engine,
		subs:   subs,
		logger: observability.NewStructuredLogger(),
	}
}

// FollowID returns the deterministic document id for a (follower, following)
// pair.
func FollowID(followerID, followingID string) string {
	return fmt.Sprintf("%s_%s", followerID, followingID)
}

// Start binds the service to userID and begins following their outgoing
// edges. Must be called before ToggleFollow.
func (s *FollowService) Start(ctx context.Context, userID string) error {
	if s.membership != nil {
		return models.NewValidationError("Follow service already started")
	}
	s.userID = userID
	s.reconciler = relation.NewReconciler(relation.Config{
		Relation:    "follow",
		Collection:  models.CollectionFollows,
		OwnerField:  "followerId",
		TargetField: "followingId",
	}, userID, s.addFollow, s.removeFollow)

	sub, err := s.subs.Raw(ctx, docstore.NewQuery(models.CollectionFollows).Where("followerId", userID))
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
func (s *FollowService) Stop() {
	if s.membership != nil {
		s.membership.Unsubscribe()
		s.membership = nil
	}
}

// ToggleFollow follows targetID when not currently followed and unfollows
// when followed. Returns true when the edge ended up present.
func (s *FollowService) ToggleFollow(ctx context.Context, targetID string) (bool, error) {
	if s.reconciler == nil {
		return false, models.NewUnauthorizedError("Sign in to follow users")
	}
	if targetID == s.userID {
		return false, models.NewValidationError("Cannot follow yourself")
	}
	added, err := s.reconciler.Toggle(ctx, targetID)
	if err != nil {
		return false, err
	}
	action := "unfollow"
	if added {
		action = "follow"
	}
	s.logger.LogServiceCall(ctx, "follow", action, map[string]interface{}{
		"follower": s.userID,
		"target":   targetID,
	})
	return added, nil
}

// IsFollowing reports the observed membership for targetID.
func (s *FollowService) IsFollowing(targetID string) bool {
	return s.reconciler != nil && s.reconciler.IsMember(targetID)
}

func (s *FollowService) addFollow(ctx context.Context, followerID, followingID string) (string, error) {
	id := FollowID(followerID, followingID)
	follow := &models.Follow{
		ID:          id,
		FollowerID:  followerID,
		FollowingID: followingID,
	}
	doc, err := docstore.Encode(follow)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	doc["createdAt"] = docstore.ServerTimestamp

	err = s.engine.CreateWithCounters(ctx, models.CollectionFollows, id, doc,
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         followerID,
			Field:      "followingCount",
			Delta:      1,
		},
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         followingID,
			Field:      "followersCount",
			Delta:      1,
		})
	if err != nil {
		return "", err
	}
	return id, nil
}

// removeFollow mirrors addFollow. When the edge is already gone the engine
// treats the whole transaction as a no-op, so the counters stay put.
func (s *FollowService) removeFollow(ctx context.Context, docID, followerID, followingID string) error {
	return s.engine.DeleteWithCounters(ctx, models.CollectionFollows, docID,
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         followerID,
			Field:      "followingCount",
			Delta:      -1,
		},
		consistency.CounterDelta{
			Collection: models.CollectionProfiles,
			ID:         followingID,
			Field:      "followersCount",
			Delta:      -1,
		})
}
