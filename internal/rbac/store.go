package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists user role assignments.
type Store interface {
	ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) (bool, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListUserRoles returns the roles assigned to a user.
func (s *PGStore) ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, role_id, created_at FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.UserID, &ur.RoleID, &ur.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

// AssignRole links a user to a role; assigning twice is a no-op.
func (s *PGStore) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW())
ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrUnknownRole
	}
	return err
}

// RemoveRole unlinks a user from a role and reports whether a link existed.
func (s *PGStore) RemoveRole(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ Store = (*PGStore)(nil)
