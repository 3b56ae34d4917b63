package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Post is a published piece of content. Author and AuthorID are immutable
// after creation; Author is a point-in-time display-name snapshot and is not
// kept in sync with later profile renames.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Excerpt   string    `json:"excerpt,omitempty"`
	AuthorID  string    `json:"authorId"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const excerptRuneLimit = 160

// DeriveExcerpt returns the stored excerpt, or a truncated form of the content
// when no explicit excerpt was provided.
func DeriveExcerpt(explicit, content string) string {
	if explicit != "" {
		return explicit
	}
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= excerptRuneLimit {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:excerptRuneLimit])) + "…"
}
