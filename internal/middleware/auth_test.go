package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlomihaimov1/demoweb/internal/model"
)

type stubVerifier struct {
	user model.PublicUser
	err  error

	gotAccess  string
	gotRefresh string
	calls      int
}

func (s *stubVerifier) Verify(_ context.Context, accessToken string, refreshToken string) (model.PublicUser, error) {
	s.calls++
	s.gotAccess = accessToken
	s.gotRefresh = refreshToken
	return s.user, s.err
}

func protectedHandler(t *testing.T, wantUser model.PublicUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantUser, user)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	verifier := &stubVerifier{user: model.PublicUser{ID: "u1", Email: "a@x.com"}}
	handler := NewAuthMiddleware(verifier).RequireAuth(protectedHandler(t, verifier.user))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer access-token")
	req.Header.Set(RefreshTokenHeader, "refresh-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access-token", verifier.gotAccess)
	assert.Equal(t, "refresh-token", verifier.gotRefresh)
}

func TestRequireAuthRejectsMissingHeaders(t *testing.T) {
	cases := []struct {
		name    string
		access  string
		refresh string
	}{
		{"no headers", "", ""},
		{"only bearer", "Bearer access-token", ""},
		{"only refresh", "", "refresh-token"},
		{"not bearer", "Basic foo", "refresh-token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubVerifier{}
			handler := NewAuthMiddleware(verifier).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tc.access != "" {
				req.Header.Set("Authorization", tc.access)
			}
			if tc.refresh != "" {
				req.Header.Set(RefreshTokenHeader, tc.refresh)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			// The session layer is never consulted on header absence.
			assert.Equal(t, 0, verifier.calls)
		})
	}
}

func TestRequireAuthRejectsOnVerifierError(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("nope")}
	handler := NewAuthMiddleware(verifier).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer access-token")
	req.Header.Set(RefreshTokenHeader, "refresh-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthMissingSecretIsServerError(t *testing.T) {
	verifier := &stubVerifier{err: model.ErrSecretNotConfigured}
	handler := NewAuthMiddleware(verifier).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer access-token")
	req.Header.Set(RefreshTokenHeader, "refresh-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
