package models

import "time"

// Bookmark marks a post saved by a user. The post* fields are captured at
// bookmark time and intentionally go stale if the source post changes later.
// At most one bookmark may exist per (UserID, PostID) pair after quiescence.
type Bookmark struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	PostID      string    `json:"postId"`
	PostTitle   string    `json:"postTitle"`
	PostAuthor  string    `json:"postAuthor"`
	PostContent string    `json:"postContent"`
	PostExcerpt string    `json:"postExcerpt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
