// Package seed provides helpers to create demo data in the document store.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Factory builds randomized domain inputs. It does not persist anything; the
// Seeder pushes its output through the real services so counters and
// timestamps behave exactly as they do in production.
type Factory struct{}

// NewFactory creates a new Factory.
func NewFactory() *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{}
}

// Principal generates a fake authenticated identity.
func (f *Factory) Principal() *models.Principal {
	name := gofakeit.Name()
	return &models.Principal{
		ID:     uuid.NewString(),
		Name:   name,
		Email:  gofakeit.Email(),
		Avatar: fmt.Sprintf("https://picsum.photos/seed/%s/200/200", gofakeit.UUID()),
	}
}

// PostInput generates a post authored by the given profile.
func (f *Factory) PostInput(author *models.Profile) service.CreatePostInput {
	return service.CreatePostInput{
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Title:      gofakeit.Sentence(5),
		Content:    gofakeit.Paragraph(2, 4, 8, "\n"),
	}
}

// CommentInput generates a comment on postID by the given profile.
func (f *Factory) CommentInput(postID string, author *models.Profile) service.AddCommentInput {
	return service.AddCommentInput{
		PostID:       postID,
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.Avatar,
		Content:      gofakeit.Sentence(12),
	}
}

// Bio generates a short profile bio.
func (f *Factory) Bio() string {
	return gofakeit.Quote()
}
