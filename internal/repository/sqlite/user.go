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

// UserDB implements repository.UserRepository.
type UserDB struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserDB)(nil)

// Create inserts a new user, generating its ID and timestamps. The email
// is lower-cased before storage.
//
// Uniqueness is left to the UNIQUE constraint: two concurrent
// registrations for the same address cannot both pass a SELECT-then-INSERT
// check, but only one of them can win the insert.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", "Email already registered")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := u.scanOne(ctx, `WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := u.scanOne(ctx, `WHERE email = ?`, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "user not found"}
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

func (u *UserDB) scanOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var user model.User
	err := u.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
