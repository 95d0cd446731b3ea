// Package service holds the credential and post business logic.
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// AuthService validates registration and login input, hashes and verifies
// passwords and issues session tokens. It knows nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// weakPasswordMessage is returned for every policy violation. The
// individual problems are logged at debug level only.
const weakPasswordMessage = "Password must be at least 8 characters long and include uppercase, lowercase, number, and special character"

// PasswordHasher is the bcrypt side of AuthService. *auth.PasswordService
// implements it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// AuthService handles registration, login and token checks.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords PasswordHasher
	logger    *slog.Logger

	// unknownUserHash is compared against when a login names an email
	// nobody registered, so that branch costs one bcrypt compare too.
	unknownUserHash string
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords PasswordHasher,
	logger *slog.Logger,
) *AuthService {
	unknownUserHash, err := passwords.Hash("unknown-user-P4ssword!")
	if err != nil {
		logger.Error("failed to prepare login hash", slog.String("error", err.Error()))
	}
	return &AuthService{
		users:           users,
		tokens:          tokens,
		passwords:       passwords,
		logger:          logger,
		unknownUserHash: unknownUserHash,
	}
}

// AuthResult is the body of a successful register or login.
type AuthResult struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// Register creates an account and signs the new user in.
//
// Checks run in a fixed order and the first failure wins: presence, name
// length, email format, password policy, then email uniqueness.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	if name == "" || email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}

	name = strings.TrimSpace(name)
	if !validNameLength(name) {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("Name must be between %d and %d characters", MinNameLength, MaxNameLength))
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", "Invalid email format")
	}

	if err := auth.CheckPasswordStrength(password); err != nil {
		s.logger.Debug("registration rejected: weak password", slog.String("reason", err.Error()))
		return nil, apperror.ValidationFailed("password", weakPasswordMessage)
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be %d characters or fewer", auth.MaxPasswordBytes))
	}

	// Friendly early answer for the common case. The UNIQUE constraint
	// still decides races between concurrent registrations.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email", "Email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))

	return s.issue(user)
}

// Login checks credentials and issues a token.
//
// An unknown email and a wrong password produce the same error and both
// pay for one bcrypt compare, so neither the answer nor its timing tells
// a caller which addresses are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Email and password are required")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", "Invalid email format")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.Verify(s.unknownUserHash, password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return s.issue(user)
}

// Me returns the public profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.PublicUser, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	pub := user.Public()
	return &pub, nil
}

// ValidateToken returns the user ID encoded in a session token.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized("Token is not valid")
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	s.logger.Debug("session token issued",
		slog.String("userID", user.ID),
		slog.Duration("ttl", s.tokens.TTL()),
	)
	return &AuthResult{Token: token, User: user.Public()}, nil
}
