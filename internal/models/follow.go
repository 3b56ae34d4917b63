package models

import "time"

// Follow is a directed edge: FollowerID follows FollowingID. At most one edge
// may exist per ordered pair, and self-follows are forbidden.
type Follow struct {
	ID          string    `json:"id"`
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}
