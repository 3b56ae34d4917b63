package service

import (
	"context"
	"errors"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/subscription"
)

type ProfileService struct {
	store  docstore.Store
	subs   *subscription.Manager
	logger *observability.StructuredLogger
}

// UpdateProfileInput carries the owner-editable fields. Counter fields are
// deliberately absent: they move only through counter transactions.
type UpdateProfileInput struct {
	RequesterID     string
	ProfileID       string
	Name            string
	Bio             string
	Avatar          string
	ProfileComplete bool
}

func NewProfileService(store docstore.Store, subs *subscription.Manager) *ProfileService {
	return &ProfileService{
		store:  store,
		subs:   subs,
		logger: observability.NewStructuredLogger(),
	}
}

// GetProfile fetches a profile by id.
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	doc, err := s.store.Get(ctx, models.CollectionProfiles, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("profile", id)
		}
		return nil, models.NewUnavailableError(err)
	}
	var profile models.Profile
	if err := docstore.Decode(doc, &profile); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &profile, nil
}

// UpdateProfile edits the owner fields of a profile. It runs as a
// read-modify-write transaction so a counter increment committing in between
// is never clobbered.
func (s *ProfileService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.Profile, error) {
	const maxNameLen = 100
	const maxBioLen = 1000

	if in.RequesterID != in.ProfileID {
		return nil, models.NewUnauthorizedError("Only the owner can edit this profile")
	}
	if in.Name == "" {
		return nil, models.NewValidationError("Name is required")
	}
	if len(in.Name) > maxNameLen {
		return nil, models.NewValidationError("Name too long (max 100 characters)")
	}
	if len(in.Bio) > maxBioLen {
		return nil, models.NewValidationError("Bio too long (max 1000 characters)")
	}

	var updated models.Profile
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(ctx, models.CollectionProfiles, in.ProfileID)
		if err != nil {
			return err
		}
		doc["name"] = in.Name
		doc["bio"] = in.Bio
		doc["avatar"] = in.Avatar
		doc["profileComplete"] = in.ProfileComplete
		tx.Put(models.CollectionProfiles, in.ProfileID, doc)
		return docstore.Decode(doc, &updated)
	})
	if err != nil {
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			return nil, models.NewNotFoundError("profile", in.ProfileID)
		case errors.Is(err, docstore.ErrConflict):
			return nil, models.NewConflictError(err)
		default:
			return nil, models.NewUnavailableError(err)
		}
	}

	s.logger.LogServiceCall(ctx, "profile", "update", map[string]interface{}{
		"id": in.ProfileID,
	})
	return &updated, nil
}

// SubscribeProfile opens a live single-profile stream.
func (s *ProfileService) SubscribeProfile(ctx context.Context, id string) (*subscription.Stream[models.Profile], error) {
	return subscription.Open[models.Profile](ctx, s.subs,
		docstore.NewQuery(models.CollectionProfiles).Where("id", id))
}
