package roles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDuplicateResetsIdentity(t *testing.T) {
	source := Role{
		ID:                 4,
		Name:               "Administrator",
		Description:        "built-in",
		Level:              0,
		ParentRoleID:       ptr(1),
		Permissions:        []string{"a", "b"},
		InheritanceEnabled: true,
		IsSystem:           true,
		UserCount:          12,
	}

	dup := Duplicate(source, "")
	require.Equal(t, "Administrator (Copy)", dup.Name)
	require.Zero(t, dup.ID)
	require.False(t, dup.IsSystem)
	require.Zero(t, dup.UserCount)
	require.Equal(t, source.Permissions, dup.Permissions)
	require.Equal(t, int64(1), *dup.ParentRoleID)
	require.True(t, dup.InheritanceEnabled)

	dup.Permissions[0] = "mutated"
	*dup.ParentRoleID = 9
	require.Equal(t, "a", source.Permissions[0])
	require.Equal(t, int64(1), *source.ParentRoleID)

	require.Equal(t, "Ops", Duplicate(source, "  Ops ").Name)
}

func TestCanDelete(t *testing.T) {
	all := []Role{
		{ID: 1, Name: "System", IsSystem: true},
		{ID: 2, Name: "Busy", UserCount: 3},
		{ID: 3, Name: "Parent"},
		{ID: 4, Name: "Child", ParentRoleID: ptr(3)},
		{ID: 5, Name: "Loop", ParentRoleID: ptr(5)},
	}

	require.ErrorIs(t, CanDelete(all[0], all), ErrSystemRole)
	require.ErrorIs(t, CanDelete(all[1], all), ErrRoleInUse)
	require.ErrorIs(t, CanDelete(all[2], all), ErrHasChildren)
	require.NoError(t, CanDelete(all[3], all))
	require.NoError(t, CanDelete(all[4], all))
}

func TestNormalizePermissions(t *testing.T) {
	got := NormalizePermissions([]string{" roles.view", "", "roles.edit", "roles.view ", "  "})
	require.Equal(t, []string{"roles.view", "roles.edit"}, got)
	require.Empty(t, NormalizePermissions(nil))
}
