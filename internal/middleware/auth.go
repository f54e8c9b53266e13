package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/model"
	"github.com/signalix/phoneauth/internal/repo"
)

type contextKey string

const (
	userKey   contextKey = "user"
	userIDKey contextKey = "user_id"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*auth.JWTClaims, error)
}

// UserLoader loads users by id.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

// AuthMiddleware validates the bearer access token, loads the user and
// attaches it to the request context
func AuthMiddleware(tokens AccessVerifier, users UserLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondUnauthenticated(w, "Authentication credentials were not provided.")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondUnauthenticated(w, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondUnauthenticated(w, "missing token")
				return
			}

			claims, err := tokens.VerifyAccessToken(tokenString)
			if err != nil {
				logger.Debug("access token rejected", zap.Error(err))
				respondUnauthenticated(w, "invalid or expired token")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				respondUnauthenticated(w, "invalid or expired token")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, repo.ErrNotFound) {
					logger.Error("failed to load user for token", zap.Stringer("user_id", userID), zap.Error(err))
				}
				respondUnauthenticated(w, "user not found")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, &user)
			ctx = context.WithValue(ctx, userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the user attached to the request context (set by AuthMiddleware)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

func respondUnauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  auth.CodeUnauthenticated,
	})
}
