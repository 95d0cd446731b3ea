// Package repository declares the persistence interfaces the services
// depend on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/postboard/internal/model"
)

// UserRepository stores registered accounts.
type UserRepository interface {
	// Create inserts user and fills in ID and timestamps. A duplicate email
	// yields an apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByEmail matches case-insensitively and returns apperror.ErrNotFound
	// when no account uses the address.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// PostFilter selects the posts of one owner in one status.
type PostFilter struct {
	OwnerID string
	Status  model.PostStatus
}

// PostUpdate is a partial update: nil fields are left untouched.
//
// When ExpectMediaURL is set the update only applies while the stored
// media URL still equals it; otherwise Update reports ErrNotFound and the
// caller re-reads the post.
type PostUpdate struct {
	Caption        *string
	Media          *model.Media
	ExpectMediaURL *string
}

// Empty reports whether the update changes nothing.
func (u PostUpdate) Empty() bool {
	return u.Caption == nil && u.Media == nil
}

// PostRepository stores posts. Every method that targets a single post
// takes the owner ID and matches on (id, owner) in one statement, so a
// post owned by someone else is indistinguishable from a missing one:
// both yield apperror.ErrNotFound.
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	// List returns matching posts newest first with UserName resolved.
	List(ctx context.Context, filter PostFilter) ([]model.Post, error)
	GetOwned(ctx context.Context, ownerID, id string) (*model.Post, error)
	Publish(ctx context.Context, ownerID, id string) (*model.Post, error)
	Update(ctx context.Context, ownerID, id string, update PostUpdate) (*model.Post, error)
	// Delete returns the removed post.
	Delete(ctx context.Context, ownerID, id string) (*model.Post, error)
}
