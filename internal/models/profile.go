package models

import "time"

// Profile describes a principal at the application level. Its ID is always the
// principal ID, so bootstrap re-creation overwrites the same document instead
// of producing duplicates.
//
// Counter fields are denormalized aggregates maintained exclusively through
// counter transactions; direct profile edits must never touch them.
type Profile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Bio             string    `json:"bio,omitempty"`
	Avatar          string    `json:"avatar,omitempty"`
	PostsCount      int64     `json:"postsCount"`
	FollowersCount  int64     `json:"followersCount"`
	FollowingCount  int64     `json:"followingCount"`
	ProfileComplete bool      `json:"profileComplete"`
	CreatedAt       time.Time `json:"createdAt"`
}
