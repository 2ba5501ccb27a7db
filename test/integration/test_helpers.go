//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shlomihaimov1/demoweb/internal/config"
	"github.com/shlomihaimov1/demoweb/internal/database"
	"github.com/shlomihaimov1/demoweb/internal/handler"
	"github.com/shlomihaimov1/demoweb/internal/middleware"
	"github.com/shlomihaimov1/demoweb/internal/model"
	"github.com/shlomihaimov1/demoweb/internal/repository"
	"github.com/shlomihaimov1/demoweb/internal/router"
	"github.com/shlomihaimov1/demoweb/internal/service"
	"github.com/shlomihaimov1/demoweb/internal/token"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func newDatabase(t *testing.T) *database.DB {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_TEST_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_TEST_URL not set; skipping integration test")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, 4, 1)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.Pool.Exec(ctx, `TRUNCATE refresh_tokens, users`)
	require.NoError(t, err)

	t.Cleanup(db.Close)
	return db
}

func newServer(t *testing.T, db *database.DB) *httptest.Server {
	t.Helper()

	codec, err := token.NewCodec("integration-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db.Pool)
	tokenRepo := repository.NewTokenRepository(db.Pool)
	authService := service.NewAuthService(codec, userRepo, tokenRepo, 4)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)

	cfg := &config.Config{
		RequestTimeout:   30 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}

	server := httptest.NewServer(router.New(cfg, authMiddleware, authHandler))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload any) (int, envelope) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func getWithTokens(t *testing.T, url string, accessToken string, refreshToken string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set(middleware.RefreshTokenHeader, refreshToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

func decodePair(t *testing.T, env envelope) model.TokenPair {
	t.Helper()

	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	return pair
}
