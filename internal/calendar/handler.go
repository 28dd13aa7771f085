package calendar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

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

// CalendarService is the subset of Service used by Handler.
type CalendarService interface {
	ListOffices(ctx context.Context) ([]OfficeCalendarProfile, error)
	GetOffice(ctx context.Context, id string) (OfficeCalendarProfile, error)
	UpsertOffice(ctx context.Context, actorID int64, p OfficeCalendarProfile) (OfficeCalendarProfile, error)
	Probe(ctx context.Context, officeID string, at time.Time) (DayProbe, error)
	Compute(ctx context.Context, req DeadlineRequest) (DeadlineResult, error)
	Adjust(ctx context.Context, officeID string, candidate time.Time) (Adjustment, error)
	SubmitBatch(ctx context.Context, reqs []DeadlineRequest) (Batch, error)
	GetBatch(ctx context.Context, batchID string) (Batch, error)
}

var _ CalendarService = (*Service)(nil)

// Handler exposes office calendars and deadline computations.
type Handler struct {
	logger  *slog.Logger
	service CalendarService
	guard   Guard
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service CalendarService, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

// MountRoutes registers calendar routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		h.use(r, true, shared.PermCalendarView, shared.PermCalendarEdit)
		r.Get("/offices", h.listOffices)
		r.Get("/offices/{id}", h.getOffice)
		r.Get("/offices/{id}/probe", h.probe)
		r.Post("/deadlines", h.compute)
		r.Post("/deadlines/adjust", h.adjust)
		r.Get("/deadlines/batches/{batchID}", h.getBatch)
	})
	r.Group(func(r chi.Router) {
		h.use(r, false, shared.PermCalendarEdit)
		r.Put("/offices/{id}", h.upsertOffice)
		r.Post("/deadlines/batches", h.submitBatch)
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

type adjustRequest struct {
	OfficeID  string    `json:"office_id" validate:"required,max=64"`
	Candidate time.Time `json:"candidate" validate:"required"`
}

type batchRequest struct {
	Requests []DeadlineRequest `json:"requests" validate:"required,min=1,max=500,dive"`
}

func (h *Handler) listOffices(w http.ResponseWriter, r *http.Request) {
	offices, err := h.service.ListOffices(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"offices": offices})
}

func (h *Handler) getOffice(w http.ResponseWriter, r *http.Request) {
	office, err := h.service.GetOffice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, office)
}

func (h *Handler) upsertOffice(w http.ResponseWriter, r *http.Request) {
	var profile OfficeCalendarProfile
	if err := httpx.DecodeJSON(r, &profile); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if profile.ID == "" {
		profile.ID = id
	}
	if profile.ID != id {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "body id does not match path")
		return
	}
	saved, err := h.service.UpsertOffice(r.Context(), shared.ActorID(r.Context()), profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) probe(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Time", "at must be RFC3339")
			return
		}
		at = parsed
	}
	probe, err := h.service.Probe(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, probe)
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	var req DeadlineRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Compute(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decode(w, r, &req) {
		return
	}
	adj, err := h.service.Adjust(r.Context(), req.OfficeID, req.Candidate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	batch, err := h.service.SubmitBatch(r.Context(), req.Requests)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/calendar/deadlines/batches/"+batch.ID)
	httpx.JSON(w, http.StatusAccepted, batch)
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := Validator().Struct(dst); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		httpx.ValidationProblem(w, err)
		return
	}
	kind := classify(err)
	if kind == nil {
		h.logger.Error("calendar request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, httpx.Classify(kind, err))
}

// classify maps calendar errors onto httpx sentinels; nil means unexpected.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBatchNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrConfiguration):
		return httpx.ErrUnprocessable
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInvalidBatch):
		return httpx.ErrValidation
	default:
		return nil
	}
}
