package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// PostDB implements repository.PostRepository.
//
// OWNERSHIP SCOPING:
// Publish, Update and Delete are each ONE statement whose WHERE clause
// matches both the post ID and the owner ID, with RETURNING for the row.
// There is no read-then-check window in which another request could change
// the row. A zero-row result means "not yours or not there", and both map
// to NotFound.
type PostDB struct {
	conn *sql.DB
}

var _ repository.PostRepository = (*PostDB)(nil)

const postColumns = `id, user_id, caption, media_type, media_url, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner, extra ...any) (*model.Post, error) {
	var (
		post              model.Post
		mediaType, status string
	)
	dest := append([]any{
		&post.ID,
		&post.UserID,
		&post.Caption,
		&mediaType,
		&post.MediaURL,
		&status,
		&post.CreatedAt,
		&post.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	post.MediaType = model.MediaType(mediaType)
	post.Status = model.PostStatus(status)
	return &post, nil
}

// Create inserts post, generating its ID and timestamps. Empty media
// fields default to MediaNone / "".
func (p *PostDB) Create(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.ID = xid.New().String()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.MediaType == "" {
		post.MediaType = model.MediaNone
	}
	if post.Status == "" {
		post.Status = model.StatusDraft
	}

	_, err := p.conn.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.UserID,
		post.Caption,
		string(post.MediaType),
		post.MediaURL,
		string(post.Status),
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	return nil
}

// List returns the owner's posts in the given status, newest first, with
// the owner's name joined in.
func (p *PostDB) List(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	rows, err := p.conn.QueryContext(ctx,
		`SELECT p.id, p.user_id, p.caption, p.media_type, p.media_url, p.status,
		        p.created_at, p.updated_at, u.name
		 FROM posts p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id = ? AND p.status = ?
		 ORDER BY p.created_at DESC, p.rowid DESC`,
		filter.OwnerID,
		string(filter.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var name string
		post, err := scanPost(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		post.UserName = name
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}

// GetOwned retrieves a post only if ownerID owns it.
func (p *PostDB) GetOwned(ctx context.Context, ownerID, id string) (*model.Post, error) {
	row := p.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	return p.owned(row, id, "getting")
}

// Publish flips the post to published. Publishing an already published
// post succeeds and leaves it published.
func (p *PostDB) Publish(ctx context.Context, ownerID, id string) (*model.Post, error) {
	row := p.conn.QueryRowContext(ctx,
		`UPDATE posts SET status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING `+postColumns,
		string(model.StatusPublished), time.Now().UTC(),
		id, ownerID,
	)
	return p.owned(row, id, "publishing")
}

// Update applies the non-nil fields of update in a single conditional
// UPDATE. An empty update just returns the owned post. A stale
// ExpectMediaURL matches no row and yields NotFound.
func (p *PostDB) Update(ctx context.Context, ownerID, id string, update repository.PostUpdate) (*model.Post, error) {
	if update.Empty() {
		return p.GetOwned(ctx, ownerID, id)
	}

	var (
		sets []string
		args []any
	)
	if update.Caption != nil {
		sets = append(sets, "caption = ?")
		args = append(args, *update.Caption)
	}
	if update.Media != nil {
		sets = append(sets, "media_type = ?", "media_url = ?")
		args = append(args, string(update.Media.Type), update.Media.URL)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, ownerID)

	where := "id = ? AND user_id = ?"
	if update.ExpectMediaURL != nil {
		where += " AND media_url = ?"
		args = append(args, *update.ExpectMediaURL)
	}

	row := p.conn.QueryRowContext(ctx,
		`UPDATE posts SET `+strings.Join(sets, ", ")+`
		 WHERE `+where+`
		 RETURNING `+postColumns,
		args...,
	)
	return p.owned(row, id, "updating")
}

// Delete removes the post only if ownerID owns it and returns the removed
// row, so the caller can clean up its media file.
func (p *PostDB) Delete(ctx context.Context, ownerID, id string) (*model.Post, error) {
	row := p.conn.QueryRowContext(ctx,
		`DELETE FROM posts WHERE id = ? AND user_id = ?
		 RETURNING `+postColumns,
		id, ownerID,
	)
	return p.owned(row, id, "deleting")
}

func (p *PostDB) owned(row *sql.Row, id, op string) (*model.Post, error) {
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: %s post %s: %w", op, id, err)
	}
	return post, nil
}
