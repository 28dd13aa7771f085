package rbac

import "time"

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Access summarises what a user may do.
type Access struct {
	UserID      int64    `json:"user_id"`
	RoleIDs     []int64  `json:"role_ids"`
	Permissions []string `json:"permissions"`
}
