package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindToken(ctx context.Context, id string) (*APIToken, error)
	CreateToken(ctx context.Context, token APIToken) error
	RevokeToken(ctx context.Context, id string, userID int64) (bool, error)
	TouchToken(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindToken fetches a token joined with its owner's active flag.
func (r *PGRepository) FindToken(ctx context.Context, id string) (*APIToken, error) {
	var t APIToken
	var userActive bool
	err := r.pool.QueryRow(ctx, `SELECT t.id, t.user_id, t.name, t.secret_hash, t.is_active, t.expires_at, t.last_used_at, t.created_at, u.is_active
FROM api_tokens t JOIN users u ON u.id = t.user_id WHERE t.id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Name, &t.SecretHash, &t.IsActive, &t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &userActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.IsActive = t.IsActive && userActive
	return &t, nil
}

// CreateToken persists a new token.
func (r *PGRepository) CreateToken(ctx context.Context, t APIToken) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_tokens (id, user_id, name, secret_hash, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $6)`, t.ID, t.UserID, t.Name, t.SecretHash, t.ExpiresAt, t.CreatedAt)
	return err
}

// RevokeToken deactivates a token owned by userID.
func (r *PGRepository) RevokeToken(ctx context.Context, id string, userID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE api_tokens SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TouchToken records the last use of a token.
func (r *PGRepository) TouchToken(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
