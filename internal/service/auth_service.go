package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/shlomihaimov1/demoweb/internal/metrics"
	"github.com/shlomihaimov1/demoweb/internal/model"
	"github.com/shlomihaimov1/demoweb/internal/token"
	"github.com/shlomihaimov1/demoweb/pkg/apierror"
)

// UserStore is the credential-store contract the session layer needs.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
}

// TokenStore tracks each user's set of currently-valid refresh tokens.
// Consume must be atomic: concurrent calls with the same token may report it
// present to at most one caller.
type TokenStore interface {
	Store(ctx context.Context, tokenString string, userID string, expiresAt time.Time) error
	Consume(ctx context.Context, tokenString string, userID string) (bool, error)
	Exists(ctx context.Context, tokenString string, userID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
	CleanExpired(ctx context.Context) (int64, error)
}

// AuthService owns the refresh-token state machine: issued on login, rotated
// exactly once on refresh, revoked on logout. Presenting a well-signed
// refresh token that is no longer in the user's valid set is treated as
// evidence of theft and revokes every session the user has.
type AuthService struct {
	codec      *token.Codec
	users      UserStore
	tokens     TokenStore
	bcryptCost int
}

func NewAuthService(codec *token.Codec, users UserStore, tokens TokenStore, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = 12
	}

	return &AuthService{
		codec:      codec,
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := req.Password

	if email == "" || password == "" {
		return model.PublicUser{}, apierror.New("BAD_REQUEST", "email and password are required", "", http.StatusBadRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.PublicUser{}, apierror.New("BAD_REQUEST", "invalid email address", "", http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.PublicUser{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		AvatarURL:    strings.TrimSpace(req.AvatarURL),
		City:         strings.TrimSpace(req.City),
		Country:      strings.TrimSpace(req.Country),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.PublicUser{}, apierror.New("ALREADY_EXISTS", "email or username already in use", "", http.StatusConflict)
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// Login verifies the password and appends a fresh refresh token to the
// user's session list. Missing user and wrong password are deliberately
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		metrics.Logins.WithLabelValues(metrics.ResultRejected).Inc()
		return model.TokenPair{}, errWrongCredentials()
	}
	if err != nil {
		metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		return model.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.Logins.WithLabelValues(metrics.ResultRejected).Inc()
		return model.TokenPair{}, errWrongCredentials()
	}

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		return model.TokenPair{}, err
	}

	metrics.Logins.WithLabelValues(metrics.ResultOK).Inc()
	return pair, nil
}

// Refresh rotates a refresh token: the presented token leaves the valid set
// and a new pair is minted. A well-signed token that is absent from the set
// has already been used once; every session the user holds is revoked and
// the call fails. Refresh is therefore not safe to retry on the same input.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	user, err := s.resolveRefreshOwner(ctx, refreshToken)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultRejected).Inc()
		return model.TokenPair{}, err
	}

	consumed, err := s.tokens.Consume(ctx, refreshToken, user.ID)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		return model.TokenPair{}, err
	}
	if !consumed {
		metrics.Refreshes.WithLabelValues(metrics.ResultRejected).Inc()
		return model.TokenPair{}, s.revokeOnReuse(ctx, user.ID)
	}

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
		return model.TokenPair{}, err
	}

	metrics.Refreshes.WithLabelValues(metrics.ResultOK).Inc()
	return pair, nil
}

// Logout consumes the presented refresh token and clears the user's entire
// session list, logging out every device.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	user, err := s.resolveRefreshOwner(ctx, refreshToken)
	if err != nil {
		return err
	}

	consumed, err := s.tokens.Consume(ctx, refreshToken, user.ID)
	if err != nil {
		return err
	}
	if !consumed {
		return s.revokeOnReuse(ctx, user.ID)
	}

	if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	metrics.Logouts.Inc()
	return nil
}

// Verify authorizes a single request. The refresh token must be well signed
// AND currently in its owner's valid set (checked first, without consuming
// it); only then is the access token's signature and expiry checked and its
// subject resolved. An access token alone never authorizes a request, which
// makes logout and reuse revocation effective immediately instead of after
// the access token expires.
func (s *AuthService) Verify(ctx context.Context, accessToken string, refreshToken string) (model.PublicUser, error) {
	owner, err := s.resolveRefreshOwner(ctx, refreshToken)
	if err != nil {
		return model.PublicUser{}, err
	}

	present, err := s.tokens.Exists(ctx, refreshToken, owner.ID)
	if err != nil {
		return model.PublicUser{}, err
	}
	if !present {
		return model.PublicUser{}, s.revokeOnReuse(ctx, owner.ID)
	}

	claims, err := s.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		if errors.Is(err, model.ErrSecretNotConfigured) {
			return model.PublicUser{}, err
		}
		return model.PublicUser{}, errInvalidSession()
	}

	subject, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, errInvalidSession()
		}
		return model.PublicUser{}, err
	}

	return subject.Public(), nil
}

// GetUserByID resolves an identity with the password hash stripped.
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// StartTokenSweeper periodically removes expired refresh-token rows until
// the context is cancelled.
func (s *AuthService) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.tokens.CleanExpired(ctx)
			if err != nil {
				slog.Error("token sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				metrics.SweptTokens.Add(float64(removed))
				slog.Info("token sweep", "removed", removed)
			}
		}
	}
}

// resolveRefreshOwner checks the refresh token's signature and expiry and
// loads the embedded subject. All failures collapse into a single opaque
// rejection, except a missing signing secret which is an operator error.
func (s *AuthService) resolveRefreshOwner(ctx context.Context, refreshToken string) (model.User, error) {
	claims, err := s.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, model.ErrSecretNotConfigured) {
			return model.User{}, err
		}
		return model.User{}, errInvalidSession()
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, errInvalidSession()
		}
		return model.User{}, err
	}

	return user, nil
}

// revokeOnReuse handles a well-signed refresh token that is no longer in the
// valid set. One successful replay is the most a stolen token can ever get;
// the response is to drop every session the user has, legitimate holder
// included.
func (s *AuthService) revokeOnReuse(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		slog.Error("failed to revoke sessions after token reuse", "user_id", userID, "error", err)
	}

	metrics.ReuseRevocations.Inc()
	slog.Warn("stale refresh token presented; all sessions revoked", "user_id", userID)
	return errInvalidSession()
}

func (s *AuthService) issueAndStore(ctx context.Context, user model.User) (model.TokenPair, error) {
	pair, err := s.codec.IssuePair(user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.codec.RefreshTTL())
	if err := s.tokens.Store(ctx, pair.RefreshToken, user.ID, expiresAt); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}

func errWrongCredentials() error {
	return apierror.New("UNAUTHORIZED", "wrong username or password", "", http.StatusUnauthorized)
}

func errInvalidSession() error {
	return apierror.New("UNAUTHORIZED", "invalid or expired token", "", http.StatusUnauthorized)
}
