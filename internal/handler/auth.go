package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/service"
)

// Accounts is the credential service as seen by the HTTP layer.
// *service.AuthService implements it; tests pass a fake.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Me(ctx context.Context, userID string) (*model.PublicUser, error)
}

// AuthHandler serves account endpoints.
//
//   - HandleRegister → POST /auth/register
//   - HandleLogin    → POST /auth/login
//   - HandleMe       → GET  /auth/me (behind RequireAuth)
type AuthHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts Accounts, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account and returns a session token.
//
// HTTP: POST /auth/register
// Body: {"name": "...", "email": "...", "password": "..."}
// Response: 200 {"token": "...", "user": {...}}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleLogin exchanges credentials for a session token.
//
// HTTP: POST /auth/login
// Body: {"email": "...", "password": "..."}
// Response: 200 {"token": "...", "user": {...}}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleMe returns the authenticated user's profile.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("No token, authorization denied"))
		return
	}

	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
