package roles

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

type memRepo struct {
	mu        sync.Mutex
	roles     map[int64]Role
	perms     []Permission
	nextID    int64
	listCalls int
	listErr   error
}

func newMemRepo(roles []Role, perms []Permission) *memRepo {
	repo := &memRepo{roles: map[int64]Role{}, perms: perms, nextID: 100}
	for _, r := range roles {
		repo.roles[r.ID] = r
	}
	return repo
}

func (m *memRepo) ListRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetRole(_ context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memRepo) CreateRole(_ context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	role.ID = m.nextID
	role.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) UpdateRole(_ context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.roles[role.ID]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.UserCount = existing.UserCount
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles, id)
	return nil
}

func (m *memRepo) ListPermissions(context.Context) ([]Permission, error) {
	return m.perms, nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func seedRoles() []Role {
	return []Role{
		{ID: 1, Name: "Administrator", Level: 0, Permissions: []string{"roles.edit", "users.delete"}, InheritanceEnabled: true, IsSystem: true, UserCount: 1},
		{ID: 2, Name: "Manager", Level: 1, ParentRoleID: ptr(1), Permissions: []string{"reports.view"}, InheritanceEnabled: true},
		{ID: 3, Name: "Clerk", Level: 2, ParentRoleID: ptr(2), Permissions: []string{"orders.create"}, InheritanceEnabled: true, UserCount: 4},
	}
}

func seedCatalog() []Permission {
	return []Permission{
		{ID: "roles.edit", Module: "admin", Resource: "roles", Action: "edit", RiskLevel: RiskHigh},
		{ID: "users.delete", Module: "admin", Resource: "users", Action: "delete", RiskLevel: RiskHigh},
		{ID: "reports.view", Module: "reports", Resource: "reports", Action: "view", RiskLevel: RiskLow},
		{ID: "orders.create", Module: "sales", Resource: "orders", Action: "create", RiskLevel: RiskMedium},
	}
}

func newCachedService(t *testing.T, repo Repository) (*Service, *recordingAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	audit := &recordingAudit{}
	svc := NewService(repo, ServiceConfig{
		Cache: cache.NewVersioned(client, "roles", time.Minute),
		Audit: audit,
	})
	return svc, audit
}

func TestServiceSnapshotIsCachedUntilWrite(t *testing.T) {
	repo := newMemRepo(seedRoles(), seedCatalog())
	svc, _ := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.ListRoles(ctx, ListFilters{})
	require.NoError(t, err)
	_, err = svc.GetRole(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	_, err = svc.CreateRole(ctx, 7, RoleInput{Name: "Auditor", Level: 2, InheritanceEnabled: true})
	require.NoError(t, err)
	calls := repo.listCalls

	list, err := svc.ListRoles(ctx, ListFilters{})
	require.NoError(t, err)
	require.Len(t, list, 4)
	require.Equal(t, calls+1, repo.listCalls)
}

func TestServiceResolveAndEffectivePermissions(t *testing.T) {
	svc := NewService(newMemRepo(seedRoles(), seedCatalog()), ServiceConfig{})
	ctx := context.Background()

	res, err := svc.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"orders.create", "reports.view", "roles.edit", "users.delete"}, res.Effective)
	require.Equal(t, 2, res.HighRiskCount)

	perms, err := svc.EffectivePermissionsFor(ctx, []int64{2, 404})
	require.NoError(t, err)
	require.Equal(t, []string{"reports.view", "roles.edit", "users.delete"}, perms)

	_, err = svc.Resolve(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceListRolesFiltersAndSorts(t *testing.T) {
	svc := NewService(newMemRepo(seedRoles(), seedCatalog()), ServiceConfig{})
	ctx := context.Background()

	list, err := svc.ListRoles(ctx, ListFilters{Search: "ER"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Manager", list[0].Name)
	require.Equal(t, "Clerk", list[1].Name)

	list, err = svc.ListRoles(ctx, ListFilters{SortBy: "users", SortDir: "desc"})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 1, 2}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestServiceCreateRoleValidation(t *testing.T) {
	svc := NewService(newMemRepo(seedRoles(), seedCatalog()), ServiceConfig{})
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, RoleInput{Name: "  "})
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "Manager"})
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "Ghost", Permissions: []string{"nope"}})
	require.ErrorIs(t, err, ErrUnknownPermission)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "Orphan", ParentRoleID: ptr(77)})
	require.ErrorIs(t, err, ErrParentNotFound)

	created, err := svc.CreateRole(ctx, 1, RoleInput{
		Name:               " Analyst ",
		ParentRoleID:       ptr(2),
		Permissions:        []string{"reports.view", "reports.view", " orders.create"},
		InheritanceEnabled: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Analyst", created.Name)
	require.Equal(t, []string{"reports.view", "orders.create"}, created.Permissions)
}

func TestServiceUpdateRoleRejectsCycle(t *testing.T) {
	svc, audit := newCachedService(t, newMemRepo(seedRoles(), seedCatalog()))
	ctx := context.Background()

	_, err := svc.UpdateRole(ctx, 1, 2, RoleInput{Name: "Manager", ParentRoleID: ptr(3), InheritanceEnabled: true})
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, []int64{2, 3, 2}, cycleErr.Path)

	_, err = svc.UpdateRole(ctx, 1, 1, RoleInput{Name: "Administrator"})
	require.ErrorIs(t, err, ErrSystemRole)

	_, err = svc.UpdateRole(ctx, 1, 999, RoleInput{Name: "Nobody"})
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.UpdateRole(ctx, 9, 3, RoleInput{Name: "Senior Clerk", Level: 2, ParentRoleID: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, "Senior Clerk", updated.Name)
	require.False(t, updated.InheritanceEnabled)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "ROLE_UPDATE", audit.entries[0].Action)
	require.Equal(t, int64(9), audit.entries[0].ActorID)
	require.Equal(t, "3", audit.entries[0].EntityID)
}

func TestServiceDuplicateAndDelete(t *testing.T) {
	svc, audit := newCachedService(t, newMemRepo(seedRoles(), seedCatalog()))
	ctx := context.Background()

	dup, err := svc.DuplicateRole(ctx, 5, 1, "")
	require.NoError(t, err)
	require.Equal(t, "Administrator (Copy)", dup.Name)
	require.False(t, dup.IsSystem)

	require.ErrorIs(t, svc.DeleteRole(ctx, 5, 1), ErrSystemRole)
	require.ErrorIs(t, svc.DeleteRole(ctx, 5, 3), ErrRoleInUse)
	require.ErrorIs(t, svc.DeleteRole(ctx, 5, 2), ErrHasChildren)
	require.ErrorIs(t, svc.DeleteRole(ctx, 5, 12345), ErrNotFound)
	require.NoError(t, svc.DeleteRole(ctx, 5, dup.ID))

	_, err = svc.GetRole(ctx, dup.ID)
	require.ErrorIs(t, err, ErrNotFound)

	actions := make([]string, 0, len(audit.entries))
	for _, entry := range audit.entries {
		actions = append(actions, entry.Action)
		require.Equal(t, "roles", entry.Entity)
	}
	require.Equal(t, []string{"ROLE_DUPLICATE", "ROLE_DELETE"}, actions)
}

func TestServiceWarmCountsEffectivePermissions(t *testing.T) {
	svc, _ := newCachedService(t, newMemRepo(seedRoles(), seedCatalog()))

	counts, err := svc.Warm(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[int64]int{1: 2, 2: 3, 3: 4}, counts)
}

func TestServiceForest(t *testing.T) {
	svc := NewService(newMemRepo(seedRoles(), seedCatalog()), ServiceConfig{})

	forest, err := svc.Forest(context.Background())
	require.NoError(t, err)
	require.Len(t, forest, 1)
	require.Equal(t, "Administrator", forest[0].Role.Name)
	require.Equal(t, "Clerk", forest[0].Children[0].Children[0].Role.Name)
}

func TestServicePropagatesRepositoryErrors(t *testing.T) {
	repo := newMemRepo(nil, nil)
	repo.listErr = errors.New("db down")
	svc := NewService(repo, ServiceConfig{})

	_, err := svc.ListRoles(context.Background(), ListFilters{})
	require.ErrorContains(t, err, "db down")
}
