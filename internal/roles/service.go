package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrUnknownPermission indicates a grant of a permission missing from the catalog.
var ErrUnknownPermission = errors.New("roles: unknown permission")

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Snapshot is an immutable view of every role and the permission catalog.
type Snapshot struct {
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

// Find returns the role with the given id.
func (s Snapshot) Find(id int64) (Role, bool) {
	for _, role := range s.Roles {
		if role.ID == id {
			return role, true
		}
	}
	return Role{}, false
}

// ServiceConfig groups optional collaborators of Service.
type ServiceConfig struct {
	Cache   *cache.Versioned
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service handles role administration and permission resolution.
type Service struct {
	repo    Repository
	cache   *cache.Versioned
	audit   AuditRecorder
	logger  *slog.Logger
	metrics *observability.Metrics
	loads   singleflight.Group
}

// NewService builds Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cfg.Cache, audit: cfg.Audit, logger: logger, metrics: cfg.Metrics}
}

// Snapshot returns the cached role snapshot, loading it once per version.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	key, err := s.cache.Key(ctx, "snapshot")
	if err != nil {
		s.logger.Warn("roles cache key", slog.Any("error", err))
		return s.loadSnapshot(ctx)
	}
	res, err, _ := s.loads.Do(key, func() (any, error) {
		var snap Snapshot
		err := s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (any, error) {
			return s.loadSnapshot(ctx)
		})
		return snap, err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return res.(Snapshot), nil
}

func (s *Service) loadSnapshot(ctx context.Context) (Snapshot, error) {
	roleList, err := s.repo.ListRoles(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roles: list roles: %w", err)
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roles: list permissions: %w", err)
	}
	if roleList == nil {
		roleList = []Role{}
	}
	if perms == nil {
		perms = []Permission{}
	}
	return Snapshot{Roles: roleList, Permissions: perms}, nil
}

// Invalidate drops every cached snapshot.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filters.Search))
	out := make([]Role, 0, len(snap.Roles))
	for _, role := range snap.Roles {
		if search != "" && !strings.Contains(strings.ToLower(role.Name), search) {
			continue
		}
		out = append(out, role)
	}
	sortRoleList(out, filters.SortBy, filters.SortDir)
	return out, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Role{}, err
	}
	role, ok := snap.Find(id)
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Permissions, nil
}

// Resolve reports the permission views of one role.
func (s *Service) Resolve(ctx context.Context, id int64) (Resolution, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Resolution{}, err
	}
	role, ok := snap.Find(id)
	if !ok {
		return Resolution{}, ErrNotFound
	}
	res := Resolve(role, snap.Roles, snap.Permissions)
	s.observe(res)
	return res, nil
}

// Forest returns the role hierarchy.
func (s *Service) Forest(ctx context.Context) ([]*RoleTreeNode, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return BuildForest(snap.Roles), nil
}

// EffectivePermissionsFor unions the effective permissions of several
// roles. Unknown role ids contribute nothing.
func (s *Service) EffectivePermissionsFor(ctx context.Context, roleIDs []int64) ([]string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	granted := NewPermissionSet()
	for _, id := range roleIDs {
		role, ok := snap.Find(id)
		if !ok {
			continue
		}
		res := Resolve(role, snap.Roles, nil)
		s.observe(res)
		granted.Add(res.Effective...)
	}
	return granted.Sorted(), nil
}

// Warm rebuilds the snapshot and returns the effective permission count of
// every role.
func (s *Service) Warm(ctx context.Context) (map[int64]int, error) {
	if err := s.Invalidate(ctx); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(snap.Roles))
	for _, role := range snap.Roles {
		res := Resolve(role, snap.Roles, snap.Permissions)
		s.observe(res)
		counts[role.ID] = len(res.Effective)
	}
	return counts, nil
}

// RoleInput carries writable role fields.
type RoleInput struct {
	Name               string
	Description        string
	Level              int
	ParentRoleID       *int64
	Permissions        []string
	InheritanceEnabled bool
}

// CreateRole validates and inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in RoleInput) (Role, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return Role{}, err
	}
	role, err := s.prepare(snap, 0, in)
	if err != nil {
		return Role{}, err
	}
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.afterWrite(ctx, actorID, "ROLE_CREATE", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// UpdateRole validates and rewrites an existing custom role.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, in RoleInput) (Role, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return Role{}, err
	}
	existing, ok := snap.Find(id)
	if !ok {
		return Role{}, ErrNotFound
	}
	if existing.IsSystem {
		return Role{}, ErrSystemRole
	}
	role, err := s.prepare(snap, id, in)
	if err != nil {
		return Role{}, err
	}
	role.ID = id
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.afterWrite(ctx, actorID, "ROLE_UPDATE", id, map[string]any{"name": updated.Name})
	return updated, nil
}

// DuplicateRole copies a role into a new custom role.
func (s *Service) DuplicateRole(ctx context.Context, actorID, id int64, name string) (Role, error) {
	source, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	dup := Duplicate(source, name)
	created, err := s.repo.CreateRole(ctx, dup)
	if err != nil {
		return Role{}, err
	}
	s.afterWrite(ctx, actorID, "ROLE_DUPLICATE", created.ID, map[string]any{"source_id": id, "name": created.Name})
	return created, nil
}

// DeleteRole removes a role that has no members, no children and is not a
// system role. Eligibility is checked against fresh data, not the cache.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	role, ok := snap.Find(id)
	if !ok {
		return ErrNotFound
	}
	if err := CanDelete(role, snap.Roles); err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "ROLE_DELETE", id, map[string]any{"name": role.Name})
	return nil
}

func (s *Service) prepare(snap Snapshot, id int64, in RoleInput) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: name required", ErrInvalidRole)
	}
	for _, other := range snap.Roles {
		if other.ID != id && other.Name == name {
			return Role{}, ErrDuplicateName
		}
	}
	perms := NormalizePermissions(in.Permissions)
	if len(snap.Permissions) > 0 {
		catalog := make(map[string]struct{}, len(snap.Permissions))
		for _, p := range snap.Permissions {
			catalog[p.ID] = struct{}{}
		}
		for _, p := range perms {
			if _, ok := catalog[p]; !ok {
				return Role{}, fmt.Errorf("%w: %s", ErrUnknownPermission, p)
			}
		}
	}
	if err := CheckParent(snap.Roles, id, in.ParentRoleID); err != nil {
		return Role{}, err
	}
	return Role{
		Name:               name,
		Description:        strings.TrimSpace(in.Description),
		Level:              in.Level,
		ParentRoleID:       in.ParentRoleID,
		Permissions:        perms,
		InheritanceEnabled: in.InheritanceEnabled,
	}, nil
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("roles cache bump", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "roles",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("roles audit", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) observe(res Resolution) {
	if res.CyclePath != nil {
		s.metrics.RoleCycleDetected()
		s.logger.Warn("role inheritance cycle", slog.Int64("role_id", res.RoleID), slog.Any("path", res.CyclePath))
	}
	if res.UnresolvedParent != nil {
		s.logger.Debug("role parent unresolved", slog.Int64("role_id", res.RoleID), slog.Int64("parent_id", *res.UnresolvedParent))
	}
}

func sortRoleList(list []Role, sortBy, sortDir string) {
	less := lessRole
	switch sortBy {
	case "name":
		less = func(a, b Role) bool {
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
	case "users":
		less = func(a, b Role) bool {
			if a.UserCount != b.UserCount {
				return a.UserCount < b.UserCount
			}
			return lessRole(a, b)
		}
	}
	desc := sortDir == "desc"
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}
