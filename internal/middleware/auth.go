package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shlomihaimov1/demoweb/internal/model"
)

// RefreshTokenHeader carries the refresh token that must accompany the
// bearer access token on every protected request.
const RefreshTokenHeader = "x-refresh-token"

type sessionVerifier interface {
	Verify(ctx context.Context, accessToken string, refreshToken string) (model.PublicUser, error)
}

type contextKey string

const authUserContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	sessions sessionVerifier
}

func NewAuthMiddleware(sessions sessionVerifier) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// RequireAuth guards a route behind the dual-token check. Both headers must
// be present before the session layer is consulted; the resolved identity
// is attached to the request context. No rotation happens here.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		refreshToken := strings.TrimSpace(r.Header.Get(RefreshTokenHeader))

		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") || refreshToken == "" {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing access or refresh token")
			return
		}

		accessToken := strings.TrimSpace(header[7:])
		user, err := m.sessions.Verify(r.Context(), accessToken, refreshToken)
		if err != nil {
			if errors.Is(err, model.ErrSecretNotConfigured) {
				writeAuthError(w, http.StatusInternalServerError, "CONFIG_ERROR", "server is not configured for authentication")
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
	user, ok := ctx.Value(authUserContextKey).(model.PublicUser)
	return user, ok
}

func writeAuthError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
