package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/billbatista/acasinha-debts/httpx"
	"github.com/billbatista/acasinha-debts/session"
	"github.com/google/uuid"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// AuthMiddleware resolves the session from the cookie or a bearer token and
// puts its user ID in the request context. Requests without a valid session
// pass through unauthenticated.
func AuthMiddleware(sessionRepo session.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessionRepo.GetByToken(r.Context(), token)
			if err != nil {
				slog.Info("invalid/expired session", "error", err)
				if fromCookie {
					session.ClearCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), sess.UserID)))
		})
	}
}

func sessionToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token), false
		}
	}
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}

// RequireAuth answers 401 when no user is authenticated.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAuthenticated(r.Context()) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ContextWithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// IsAuthenticated checks if user is authenticated
func IsAuthenticated(ctx context.Context) bool {
	_, ok := GetUserID(ctx)
	return ok
}
