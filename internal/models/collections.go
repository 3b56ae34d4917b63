package models

// Logical collection names in the document store.
const (
	CollectionProfiles  = "profiles"
	CollectionPosts     = "posts"
	CollectionComments  = "comments"
	CollectionBookmarks = "bookmarks"
	CollectionFollows   = "follows"
)
