package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

type memStore struct {
	links map[int64]map[int64]bool
}

func (m *memStore) ListUserRoles(_ context.Context, userID int64) ([]UserRole, error) {
	var out []UserRole
	for roleID := int64(1); roleID <= 10; roleID++ {
		if m.links[userID][roleID] {
			out = append(out, UserRole{UserID: userID, RoleID: roleID})
		}
	}
	return out, nil
}

func (m *memStore) AssignRole(_ context.Context, userID, roleID int64) error {
	if roleID > 10 {
		return ErrUnknownRole
	}
	if m.links[userID] == nil {
		m.links[userID] = map[int64]bool{}
	}
	m.links[userID][roleID] = true
	return nil
}

func (m *memStore) RemoveRole(_ context.Context, userID, roleID int64) (bool, error) {
	if !m.links[userID][roleID] {
		return false, nil
	}
	delete(m.links[userID], roleID)
	return true, nil
}

type fakeResolver struct {
	asked       [][]int64
	invalidated int
}

func (f *fakeResolver) EffectivePermissionsFor(_ context.Context, ids []int64) ([]string, error) {
	f.asked = append(f.asked, ids)
	out := []string{}
	for _, id := range ids {
		switch id {
		case 1:
			out = append(out, "roles.edit", "roles.view")
		case 2:
			out = append(out, "calendar.view")
		}
	}
	return out, nil
}

func (f *fakeResolver) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

type auditSink struct {
	entries []shared.AuditLog
}

func (a *auditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func TestServiceResolvesThroughRoles(t *testing.T) {
	store := &memStore{links: map[int64]map[int64]bool{7: {1: true, 2: true}}}
	resolver := &fakeResolver{}
	svc := NewService(store, resolver, nil, nil)
	ctx := context.Background()

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"roles.edit", "roles.view", "calendar.view"}, perms)
	require.Equal(t, [][]int64{{1, 2}}, resolver.asked)

	perms, err = svc.EffectivePermissions(ctx, 99)
	require.NoError(t, err)
	require.Empty(t, perms)
	require.Len(t, resolver.asked, 1)

	access, err := svc.Access(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, access.RoleIDs)
}

func TestServiceAssignmentsAuditAndInvalidate(t *testing.T) {
	store := &memStore{links: map[int64]map[int64]bool{}}
	resolver := &fakeResolver{}
	audit := &auditSink{}
	svc := NewService(store, resolver, audit, nil)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 1, 7, 3))
	require.ErrorIs(t, svc.AssignRole(ctx, 1, 7, 42), ErrUnknownRole)
	require.NoError(t, svc.RemoveRole(ctx, 1, 7, 3))
	require.ErrorIs(t, svc.RemoveRole(ctx, 1, 7, 3), ErrNotFound)

	require.Equal(t, 2, resolver.invalidated)
	require.Len(t, audit.entries, 2)
	require.Equal(t, "USER_ROLE_ASSIGN", audit.entries[0].Action)
	require.Equal(t, "USER_ROLE_REMOVE", audit.entries[1].Action)
	require.Equal(t, "7", audit.entries[1].EntityID)
	require.Equal(t, int64(3), audit.entries[1].Meta["role_id"])
}
