package models

import "time"

// Comment is an append-only reply on a post. CreatedAt is assigned by the
// store and is monotonic within the collection, which makes it a stable
// ascending sort key for display.
type Comment struct {
	ID           string    `json:"id"`
	PostID       string    `json:"postId"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}
