package roles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound indicates that the requested role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrCycleDetected indicates a parent chain that revisits a role.
	ErrCycleDetected = errors.New("roles: inheritance cycle detected")
	// ErrParentNotFound indicates a parent reference to a missing role.
	ErrParentNotFound = errors.New("roles: parent role not found")
	// ErrRoleInUse blocks deletion of roles that still have members.
	ErrRoleInUse = errors.New("roles: role still assigned to users")
	// ErrHasChildren blocks deletion of roles other roles inherit from.
	ErrHasChildren = errors.New("roles: role is parent of other roles")
	// ErrSystemRole blocks changes to built-in roles.
	ErrSystemRole = errors.New("roles: system roles are read-only")
	// ErrInvalidRole wraps role payload problems.
	ErrInvalidRole = errors.New("roles: invalid role")
	// ErrDuplicateName indicates a role name collision.
	ErrDuplicateName = errors.New("roles: role name already exists")
)

// CycleError carries the role ids forming a parent cycle.
type CycleError struct {
	Path []int64
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("roles: inheritance cycle detected: %s", strings.Join(parts, " -> "))
}

// Unwrap exposes ErrCycleDetected to errors.Is.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
