package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlomihaimov1/demoweb/internal/model"
	"github.com/shlomihaimov1/demoweb/internal/repository"
	"github.com/shlomihaimov1/demoweb/internal/token"
)

func newTestAuth(t *testing.T) (*AuthService, *repository.MemoryTokenStore) {
	t.Helper()

	codec, err := token.NewCodec("test-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	tokens := repository.NewMemoryTokenStore()
	svc := NewAuthService(codec, repository.NewMemoryUserStore(), tokens, 4)
	return svc, tokens
}

func registerAndLogin(t *testing.T, svc *AuthService, email string) model.TokenPair {
	t.Helper()

	ctx := context.Background()
	_, err := svc.Register(ctx, model.RegisterRequest{Email: email, Password: "p"})
	require.NoError(t, err)

	pair, err := svc.Login(ctx, email, "p")
	require.NoError(t, err)
	return pair
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, model.RegisterRequest{Email: "", Password: "p"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, model.RegisterRequest{Email: "a@x.com", Password: ""})
	assert.Error(t, err)

	_, err = svc.Register(ctx, model.RegisterRequest{Email: "not-an-email", Password: "p"})
	assert.Error(t, err)

	user, err := svc.Register(ctx, model.RegisterRequest{Email: "A@X.com", Password: "p", Username: "amos"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "amos", user.Username)

	_, err = svc.Register(ctx, model.RegisterRequest{Email: "a@x.com", Password: "other"})
	assert.Error(t, err)
}

func TestLoginReturnsWorkingPair(t *testing.T) {
	svc, _ := newTestAuth(t)

	pair := registerAndLogin(t, svc, "a@x.com")
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.NotEmpty(t, pair.User.ID)
	assert.Equal(t, "a@x.com", pair.User.Email)

	identity, err := svc.Verify(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.User.ID, identity.ID)
}

func TestLoginFailureIsUniform(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, model.RegisterRequest{Email: "a@x.com", Password: "p"})
	require.NoError(t, err)

	_, errUnknown := svc.Login(ctx, "missing@x.com", "p")
	_, errWrongPass := svc.Login(ctx, "a@x.com", "bad")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPass)
	// Same message for both, to avoid account enumeration.
	assert.Equal(t, errUnknown.Error(), errWrongPass.Error())
}

func TestRefreshIsSingleUse(t *testing.T) {
	svc, tokens := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	// Replaying the consumed token fails and revokes everything the user
	// holds, including the pair minted by the successful rotation.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, 0, tokens.CountForUser(pair.User.ID))

	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshTokensNeverRepeat(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	seen := map[string]bool{pair.RefreshToken: true}

	current := pair.RefreshToken
	for i := 0; i < 5; i++ {
		rotated, err := svc.Refresh(ctx, current)
		require.NoError(t, err)
		assert.False(t, seen[rotated.RefreshToken])
		seen[rotated.RefreshToken] = true
		current = rotated.RefreshToken
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	svc, _ := newTestAuth(t)

	_, err := svc.Refresh(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestLogoutClearsAllSessions(t *testing.T) {
	svc, tokens := newTestAuth(t)
	ctx := context.Background()

	first := registerAndLogin(t, svc, "a@x.com")
	second, err := svc.Login(ctx, "a@x.com", "p")
	require.NoError(t, err)
	require.Equal(t, 2, tokens.CountForUser(first.User.ID))

	require.NoError(t, svc.Logout(ctx, first.RefreshToken))
	assert.Equal(t, 0, tokens.CountForUser(first.User.ID))

	// Both the logged-out token and the other device's token are dead.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.Error(t, err)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.Error(t, err)
}

func TestLogoutWithConsumedTokenFails(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	_, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	assert.Error(t, svc.Logout(ctx, pair.RefreshToken))
}

func TestVerifyRequiresLiveRefreshToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// The old access token is still unexpired and well signed, but the
	// refresh token it shipped with has been consumed: presenting the pair
	// fails regardless of access-token validity.
	_, err = svc.Verify(ctx, pair.AccessToken, pair.RefreshToken)
	assert.Error(t, err)

	// Access and refresh validity are checked independently: a stale but
	// unexpired access token alongside the current refresh token passes.
	// (After the previous call revoked everything, log in again first.)
	fresh, err := svc.Login(ctx, "a@x.com", "p")
	require.NoError(t, err)
	identity, err := svc.Verify(ctx, rotated.AccessToken, fresh.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.User.ID, identity.ID)
}

func TestVerifyWithGarbageAccessToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	_, err := svc.Verify(ctx, "garbage", pair.RefreshToken)
	assert.Error(t, err)
}

func TestVerifyDoesNotConsumeRefreshToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	for i := 0; i < 3; i++ {
		_, err := svc.Verify(ctx, pair.AccessToken, pair.RefreshToken)
		require.NoError(t, err)
	}

	// The refresh token is still rotatable after repeated verification.
	_, err := svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestLogoutThenRefreshFails(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair := registerAndLogin(t, svc, "a@x.com")
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err := svc.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}
