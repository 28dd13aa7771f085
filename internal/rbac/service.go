package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

var (
	// ErrNotFound indicates that the requested assignment does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrUnknownRole indicates an assignment to a role that does not exist.
	ErrUnknownRole = errors.New("rbac: unknown role")
)

// Resolver turns role ids into effective permissions.
type Resolver interface {
	EffectivePermissionsFor(ctx context.Context, roleIDs []int64) ([]string, error)
	Invalidate(ctx context.Context) error
}

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates RBAC operations.
type Service struct {
	store    Store
	resolver Resolver
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, resolver Resolver, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, audit: audit, logger: logger}
}

// RoleIDs returns the ids of roles assigned to the user.
func (s *Service) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	assigned, err := s.store.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(assigned))
	for _, ur := range assigned {
		ids = append(ids, ur.RoleID)
	}
	return ids, nil
}

// EffectivePermissions returns deduplicated permission ids for a user,
// including everything inherited through the role hierarchy.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	ids, err := s.RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	return s.resolver.EffectivePermissionsFor(ctx, ids)
}

// Access reports the roles and effective permissions of a user.
func (s *Service) Access(ctx context.Context, userID int64) (Access, error) {
	ids, err := s.RoleIDs(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	perms := []string{}
	if len(ids) > 0 {
		perms, err = s.resolver.EffectivePermissionsFor(ctx, ids)
		if err != nil {
			return Access{}, err
		}
	}
	return Access{UserID: userID, RoleIDs: ids, Permissions: perms}, nil
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "USER_ROLE_ASSIGN", userID, roleID)
	return nil
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	removed, err := s.store.RemoveRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.afterWrite(ctx, actorID, "USER_ROLE_REMOVE", userID, roleID)
	return nil
}

// member counts live in the role snapshot, so assignments invalidate it
func (s *Service) afterWrite(ctx context.Context, actorID int64, action string, userID, roleID int64) {
	if err := s.resolver.Invalidate(ctx); err != nil {
		s.logger.Warn("rbac invalidate roles", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user_roles",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"role_id": roleID},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("rbac audit", slog.Any("error", err), slog.String("action", action))
	}
}
