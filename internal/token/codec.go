// Package token signs and verifies the access/refresh token pairs used by
// the session layer. Tokens are self-contained HS256 JWTs; the codec has no
// storage and no side effects.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shlomihaimov1/demoweb/internal/model"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the verified content of a token. Both tokens of a pair carry the
// same nonce, which ties them together for traceability.
type Claims struct {
	Subject string
	Nonce   string
	Type    Type
}

type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret string, accessTTL time.Duration, refreshTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, model.ErrSecretNotConfigured
	}

	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssuePair mints an access and a refresh token for the given subject. One
// random nonce is generated per call and embedded in both tokens.
func (c *Codec) IssuePair(subjectID string) (Pair, error) {
	if len(c.secret) == 0 {
		return Pair{}, model.ErrSecretNotConfigured
	}

	now := time.Now().UTC()
	nonce := uuid.NewString()

	accessToken, err := c.sign(jwt.MapClaims{
		"sub":   subjectID,
		"nonce": nonce,
		"typ":   string(TypeAccess),
		"iat":   now.Unix(),
		"exp":   now.Add(c.accessTTL).Unix(),
	})
	if err != nil {
		return Pair{}, err
	}

	refreshToken, err := c.sign(jwt.MapClaims{
		"sub":   subjectID,
		"nonce": nonce,
		"typ":   string(TypeRefresh),
		"iat":   now.Unix(),
		"exp":   now.Add(c.refreshTTL).Unix(),
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Verify checks signature, expiry and token type. Malformed, badly signed
// and expired tokens all collapse into model.ErrInvalidToken; callers are
// not told which condition failed.
func (c *Codec) Verify(tokenString string, expected Type) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, model.ErrSecretNotConfigured
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, model.ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, model.ErrInvalidToken
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}

	typ, _ := claimsMap["typ"].(string)
	if Type(typ) != expected {
		return nil, model.ErrInvalidToken
	}

	claims := &Claims{Type: Type(typ)}
	claims.Subject, _ = claimsMap["sub"].(string)
	claims.Nonce, _ = claimsMap["nonce"].(string)

	if claims.Subject == "" {
		return nil, model.ErrInvalidToken
	}

	return claims, nil
}

func (c *Codec) sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}
