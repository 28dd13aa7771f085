package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// TokenService is the subset of Service used by Handler.
type TokenService interface {
	Authenticate(ctx context.Context, bearer string) (shared.Principal, error)
	Issue(ctx context.Context, userID int64, name string, ttl time.Duration) (IssuedToken, error)
	Revoke(ctx context.Context, userID int64, tokenID string) error
}

// Handler wires HTTP endpoints for API token flows.
type Handler struct {
	logger    *slog.Logger
	service   TokenService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service TokenService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequirePrincipal)
		r.Post("/tokens", h.issueToken)
		r.Delete("/tokens/{id}", h.revokeToken)
	})
}

// Middleware resolves a bearer token into a principal. Requests without an
// Authorization header continue anonymously.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		principal, err := h.service.Authenticate(r.Context(), value)
		if err != nil && !rejected(err) {
			h.logger.Error("authenticate token", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "token lookup failed")
			return
		}
		if err != nil {
			detail := "invalid token"
			if errors.Is(err, shared.ErrTokenExpired) {
				detail = "token expired"
			}
			h.logger.Debug("token rejected", slog.Any("error", err))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", detail)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func rejected(err error) bool {
	return errors.Is(err, shared.ErrInvalidCredentials) ||
		errors.Is(err, shared.ErrTokenExpired) ||
		errors.Is(err, ErrMalformedToken)
}

// RequirePrincipal rejects anonymous requests.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type issueRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"gte=0"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	issued, err := h.service.Issue(r.Context(), shared.ActorID(r.Context()), req.Name, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issued)
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	err := h.service.Revoke(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	default:
		h.logger.Error("revoke token", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
