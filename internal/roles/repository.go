package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-console/internal/platform/db"
)

// Repository defines persistence operations for roles and the permission catalog.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectRoles = `
SELECT r.id, r.name, r.description, r.level, r.parent_role_id, r.inheritance_enabled, r.is_system,
       COALESCE((SELECT array_agg(rp.permission_id ORDER BY rp.permission_id)
                 FROM role_permissions rp WHERE rp.role_id = r.id), '{}'::text[]) AS permissions,
       (SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = r.id) AS user_count,
       r.created_at, r.updated_at
FROM roles r`

// ListRoles returns all roles ordered by level and name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, selectRoles+` ORDER BY r.level, r.name, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, selectRoles+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// CreateRole inserts a role and its permission grants.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (name, description, level, parent_role_id, inheritance_enabled, is_system, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
			role.Name, role.Description, role.Level, role.ParentRoleID, role.InheritanceEnabled, role.IsSystem).Scan(&id)
		if err != nil {
			return mapWriteError(err)
		}
		return replacePermissions(ctx, tx, id, role.Permissions)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetRole(ctx, id)
}

// UpdateRole rewrites a role and replaces its permission grants.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET name = $1, description = $2, level = $3, parent_role_id = $4,
inheritance_enabled = $5, updated_at = NOW() WHERE id = $6`,
			role.Name, role.Description, role.Level, role.ParentRoleID, role.InheritanceEnabled, role.ID)
		if err != nil {
			return mapWriteError(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetRole(ctx, role.ID)
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns the permission catalog.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, module, resource, action, risk_level FROM permissions ORDER BY module, resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		var risk string
		if err := rows.Scan(&p.ID, &p.Module, &p.Resource, &p.Action, &risk); err != nil {
			return nil, err
		}
		p.RiskLevel = RiskLevel(risk)
		out = append(out, p)
	}
	return out, rows.Err()
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, perms []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, perm := range perms {
		batch.Queue(`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, perm)
	}
	results := tx.SendBatch(ctx, batch)
	for range perms {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("roles: grant permission: %w", err)
		}
	}
	return results.Close()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.Level,
		&role.ParentRoleID,
		&role.InheritanceEnabled,
		&role.IsSystem,
		&role.Permissions,
		&role.UserCount,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	return role, err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateName
		case "23503":
			return ErrParentNotFound
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
