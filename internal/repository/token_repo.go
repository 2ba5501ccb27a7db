package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository holds each user's set of currently-valid refresh tokens,
// one row per token. Rotation correctness depends on Consume being a single
// conditional DELETE: under concurrent refresh calls with the same token, at
// most one caller observes a removed row.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Store(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		token, userID, time.Now().UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Consume removes the token from the user's valid set and reports whether it
// was present. A false result from a well-signed token means the token was
// already rotated or revoked.
func (r *TokenRepository) Consume(ctx context.Context, token string, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens
		 WHERE token = $1 AND user_id = $2 AND expires_at > now()`,
		token, userID)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists is the non-consuming membership check used by request verification.
func (r *TokenRepository) Exists(ctx context.Context, token string, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM refresh_tokens
			WHERE token = $1 AND user_id = $2 AND expires_at > now()
		 )`, token, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return exists, nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
