package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or overwrite the
// user ID stored by RequireAuth.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth rejects requests without a valid bearer token with 401 and
// otherwise stores the token's user ID in the request context.
//
//	Authorization: Bearer <jwt>
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				msg := "Token is not valid"
				switch {
				case errors.Is(err, errNoToken):
					msg = "No token, authorization denied"
				case errors.Is(err, ErrTokenExpired):
					msg = "Token has expired"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + msg + `"}` + "\n"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. Handler tests use it to
// skip the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, or ("", false)
// outside a RequireAuth-protected route.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

var errNoToken = errors.New("auth: no bearer token")

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errNoToken
	}

	return tokens.Validate(strings.TrimSpace(token))
}
