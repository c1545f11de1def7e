package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JuribaDev/juriba-storage/internal/response"
)

type contextKey string

const userKey contextKey = "user"

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok
}

// RequireAuth rejects requests the engine cannot authenticate with 401 and
// attaches the authenticated user to the request context otherwise.
func RequireAuth(engine AuthEngine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := engine.AuthenticateRequest(r.Context(), r)
			switch {
			case err == nil:
				ctx := context.WithValue(r.Context(), userKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, ErrMissingToken), errors.Is(err, ErrUnknownUser):
				response.Errors(w, http.StatusUnauthorized, err.Error())
			default:
				slog.Warn("authentication failed", "path", r.URL.Path, "err", err)
				response.Errors(w, http.StatusUnauthorized, "invalid or expired token")
			}
		})
	}
}
