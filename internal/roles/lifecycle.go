package roles

import "strings"

// Duplicate copies a role for editing as a new custom role. The copy is
// never a system role, starts with no members and gets a fresh identity.
func Duplicate(source Role, name string) Role {
	name = strings.TrimSpace(name)
	if name == "" {
		name = source.Name + " (Copy)"
	}
	perms := make([]string, len(source.Permissions))
	copy(perms, source.Permissions)
	var parent *int64
	if source.ParentRoleID != nil {
		id := *source.ParentRoleID
		parent = &id
	}
	return Role{
		Name:               name,
		Description:        source.Description,
		Level:              source.Level,
		ParentRoleID:       parent,
		Permissions:        perms,
		InheritanceEnabled: source.InheritanceEnabled,
		IsSystem:           false,
		UserCount:          0,
	}
}

// CanDelete reports why a role may not be deleted, or nil when it may.
func CanDelete(role Role, all []Role) error {
	if role.IsSystem {
		return ErrSystemRole
	}
	if role.UserCount > 0 {
		return ErrRoleInUse
	}
	for _, other := range all {
		if other.ID == role.ID {
			continue
		}
		if other.ParentRoleID != nil && *other.ParentRoleID == role.ID {
			return ErrHasChildren
		}
	}
	return nil
}

// NormalizePermissions trims, drops blanks and removes duplicates while
// keeping first-seen order.
func NormalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
