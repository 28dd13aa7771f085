package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Guard enforces permissions on a route group.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
	RequireAll(perms ...string) func(http.Handler) http.Handler
}

// RoleService is the subset of Service used by Handler.
type RoleService interface {
	ListRoles(ctx context.Context, filters ListFilters) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	Resolve(ctx context.Context, id int64) (Resolution, error)
	Forest(ctx context.Context) ([]*RoleTreeNode, error)
	CreateRole(ctx context.Context, actorID int64, in RoleInput) (Role, error)
	UpdateRole(ctx context.Context, actorID, id int64, in RoleInput) (Role, error)
	DuplicateRole(ctx context.Context, actorID, id int64, name string) (Role, error)
	DeleteRole(ctx context.Context, actorID, id int64) error
}

var _ RoleService = (*Service)(nil)

// Handler manages role administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  RoleService
	guard    Guard
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service RoleService, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validate: httpx.NewValidator()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		h.use(r, true, shared.PermRolesView, shared.PermRolesEdit)
		r.Get("/", h.listRoles)
		r.Get("/tree", h.roleTree)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/permissions", h.rolePermissions)
	})
	r.Group(func(r chi.Router) {
		h.use(r, false, shared.PermRolesEdit)
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Post("/{id}/duplicate", h.duplicateRole)
		r.Delete("/{id}", h.deleteRole)
	})
}

// MountPermissionRoutes registers the permission catalog routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		h.use(r, true, shared.PermRolesView, shared.PermRolesEdit)
		r.Get("/", h.listPermissions)
	})
}

func (h *Handler) use(r chi.Router, anyOf bool, perms ...string) {
	if h.guard == nil {
		return
	}
	if anyOf {
		r.Use(h.guard.RequireAny(perms...))
		return
	}
	r.Use(h.guard.RequireAll(perms...))
}

type roleRequest struct {
	Name               string   `json:"name" validate:"required,max=120"`
	Description        string   `json:"description" validate:"max=500"`
	Level              int      `json:"level" validate:"gte=0,lte=100"`
	ParentRoleID       *int64   `json:"parent_role_id" validate:"omitempty,gt=0"`
	Permissions        []string `json:"permissions" validate:"dive,required,max=120"`
	InheritanceEnabled *bool    `json:"inheritance_enabled"`
}

func (req roleRequest) input() RoleInput {
	inherit := true
	if req.InheritanceEnabled != nil {
		inherit = *req.InheritanceEnabled
	}
	return RoleInput{
		Name:               req.Name,
		Description:        req.Description,
		Level:              req.Level,
		ParentRoleID:       req.ParentRoleID,
		Permissions:        req.Permissions,
		InheritanceEnabled: inherit,
	}
}

type duplicateRequest struct {
	Name string `json:"name" validate:"max=120"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roles, err := h.service.ListRoles(r.Context(), ListFilters{
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) roleTree(w http.ResponseWriter, r *http.Request) {
	forest, err := h.service.Forest(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roots": forest})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), shared.ActorID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), shared.ActorID(r.Context()), id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) duplicateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req duplicateRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.DuplicateRole(r.Context(), shared.ActorID(r.Context()), id, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), shared.ActorID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := classify(err)
	if kind == nil {
		h.logger.Error("roles request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, httpx.Classify(kind, err))
}

// classify maps role errors onto httpx sentinels; nil means unexpected.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrParentNotFound):
		return httpx.ErrValidation
	case errors.Is(err, ErrDuplicateName):
		return httpx.ErrDuplicate
	case errors.Is(err, ErrCycleDetected), errors.Is(err, ErrRoleInUse), errors.Is(err, ErrHasChildren):
		return httpx.ErrConflict
	case errors.Is(err, ErrSystemRole):
		return httpx.ErrForbidden
	default:
		return nil
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
