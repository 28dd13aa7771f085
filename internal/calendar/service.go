package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BatchEnqueuer schedules background computation of a stored batch.
type BatchEnqueuer interface {
	EnqueueDeadlineBatch(ctx context.Context, batchID string) error
}

// Batch statuses.
const (
	BatchPending = "pending"
	BatchDone    = "done"
)

// MaxBatchSize bounds the number of requests in one batch.
const MaxBatchSize = 500

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Index   int             `json:"index"`
	Request DeadlineRequest `json:"request"`
	Result  *DeadlineResult `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Batch is a stored group of deadline requests and, once done, results.
type Batch struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Requests    []DeadlineRequest `json:"requests"`
	Items       []BatchItem       `json:"items,omitempty"`
}

// ServiceConfig groups Service collaborators and tunables.
type ServiceConfig struct {
	Cache       *cache.Versioned
	Results     *cache.Versioned
	Enqueuer    BatchEnqueuer
	Audit       AuditRecorder
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	HoursPerDay float64
	Concurrency int
	ResultTTL   time.Duration
	Now         func() time.Time
}

// Service serves office calendars and deadline computations.
type Service struct {
	repo        Repository
	cache       *cache.Versioned
	results     *cache.Versioned
	enqueuer    BatchEnqueuer
	audit       AuditRecorder
	logger      *slog.Logger
	metrics     *observability.Metrics
	hoursPerDay float64
	concurrency int
	resultTTL   time.Duration
	now         func() time.Time
	loads       singleflight.Group
}

// NewService builds Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		cache:       cfg.Cache,
		results:     cfg.Results,
		enqueuer:    cfg.Enqueuer,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		hoursPerDay: cfg.HoursPerDay,
		concurrency: cfg.Concurrency,
		resultTTL:   cfg.ResultTTL,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hoursPerDay <= 0 {
		s.hoursPerDay = DefaultHoursPerDay
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.resultTTL <= 0 {
		s.resultTTL = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ListOffices returns the cached office snapshot.
func (s *Service) ListOffices(ctx context.Context) ([]OfficeCalendarProfile, error) {
	key, err := s.cache.Key(ctx, "offices")
	if err != nil {
		s.logger.Warn("calendar cache key", slog.Any("error", err))
		return s.loadOffices(ctx)
	}
	res, err, _ := s.loads.Do(key, func() (any, error) {
		var offices []OfficeCalendarProfile
		err := s.cache.FetchJSON(ctx, key, &offices, func(ctx context.Context) (any, error) {
			return s.loadOffices(ctx)
		})
		return offices, err
	})
	if err != nil {
		return nil, err
	}
	return res.([]OfficeCalendarProfile), nil
}

func (s *Service) loadOffices(ctx context.Context) ([]OfficeCalendarProfile, error) {
	offices, err := s.repo.ListOffices(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendar: list offices: %w", err)
	}
	if offices == nil {
		offices = []OfficeCalendarProfile{}
	}
	return offices, nil
}

// Calculator builds a calculator over the current office snapshot.
func (s *Service) Calculator(ctx context.Context) (*Calculator, error) {
	offices, err := s.ListOffices(ctx)
	if err != nil {
		return nil, err
	}
	return NewCalculator(offices, WithHoursPerDay(s.hoursPerDay)), nil
}

// GetOffice returns one office from the snapshot.
func (s *Service) GetOffice(ctx context.Context, id string) (OfficeCalendarProfile, error) {
	offices, err := s.ListOffices(ctx)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	for _, o := range offices {
		if o.ID == id {
			return o, nil
		}
	}
	return OfficeCalendarProfile{}, ErrNotFound
}

// UpsertOffice validates and stores an office profile.
func (s *Service) UpsertOffice(ctx context.Context, actorID int64, p OfficeCalendarProfile) (OfficeCalendarProfile, error) {
	if err := Validate(p); err != nil {
		return OfficeCalendarProfile{}, err
	}
	saved, err := s.repo.UpsertOffice(ctx, p)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("calendar cache bump", slog.Any("error", err))
	}
	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:  actorID,
			Action:   "OFFICE_UPSERT",
			Entity:   "office_calendars",
			EntityID: saved.ID,
			Meta:     map[string]any{"timezone": saved.Timezone, "holidays": len(saved.Holidays)},
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Error("calendar audit", slog.Any("error", err))
		}
	}
	return saved, nil
}

// Probe describes the office-local day containing at.
func (s *Service) Probe(ctx context.Context, officeID string, at time.Time) (DayProbe, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return DayProbe{}, err
	}
	return calc.Probe(at, officeID)
}

// Compute computes one deadline.
func (s *Service) Compute(ctx context.Context, req DeadlineRequest) (DeadlineResult, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return DeadlineResult{}, err
	}
	return s.compute(calc, req)
}

func (s *Service) compute(calc *Calculator, req DeadlineRequest) (DeadlineResult, error) {
	res, err := calc.ComputeDeadline(req)
	if err != nil {
		return DeadlineResult{}, err
	}
	s.record(req.OfficeID, res.Adjustment)
	return res, nil
}

// Adjust applies the office's escalation rules to a candidate deadline.
func (s *Service) Adjust(ctx context.Context, officeID string, candidate time.Time) (Adjustment, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	adj, err := calc.AdjustDeadline(candidate, officeID)
	if err != nil {
		return Adjustment{}, err
	}
	s.record(officeID, adj)
	return adj, nil
}

func (s *Service) record(officeID string, adj Adjustment) {
	outcome := adj.Outcome()
	s.metrics.DeadlineResult(outcome)
	if adj.CapExceeded {
		s.logger.Warn("deadline extension capped",
			slog.String("office_id", officeID),
			slog.Int("extension_days", adj.ExtensionDays),
			slog.Any("fallback_offices", adj.FallbackOffices))
	}
}

// ComputeBatch computes every request in parallel over one snapshot. A
// failing request is reported on its item and does not stop the others.
func (s *Service) ComputeBatch(ctx context.Context, reqs []DeadlineRequest) ([]BatchItem, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item := BatchItem{Index: i, Request: req}
			res, err := s.compute(calc, req)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Result = &res
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// SubmitBatch stores a batch and schedules its computation.
func (s *Service) SubmitBatch(ctx context.Context, reqs []DeadlineRequest) (Batch, error) {
	if len(reqs) == 0 || len(reqs) > MaxBatchSize {
		return Batch{}, fmt.Errorf("%w: batch must hold 1..%d requests", ErrInvalidBatch, MaxBatchSize)
	}
	if s.enqueuer == nil {
		return Batch{}, errors.New("calendar: batch queue not configured")
	}
	batch := Batch{
		ID:        uuid.NewString(),
		Status:    BatchPending,
		CreatedAt: s.now().UTC(),
		Requests:  reqs,
	}
	if err := s.results.SetJSON(ctx, batchKey(batch.ID), batch, s.resultTTL); err != nil {
		return Batch{}, fmt.Errorf("calendar: store batch: %w", err)
	}
	if err := s.enqueuer.EnqueueDeadlineBatch(ctx, batch.ID); err != nil {
		return Batch{}, fmt.Errorf("calendar: enqueue batch: %w", err)
	}
	return batch, nil
}

// RunBatch computes a stored batch and saves its results.
func (s *Service) RunBatch(ctx context.Context, batchID string) (Batch, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status == BatchDone {
		return batch, nil
	}
	items, err := s.ComputeBatch(ctx, batch.Requests)
	if err != nil {
		return Batch{}, err
	}
	completed := s.now().UTC()
	batch.Items = items
	batch.Status = BatchDone
	batch.CompletedAt = &completed
	if err := s.results.SetJSON(ctx, batchKey(batch.ID), batch, s.resultTTL); err != nil {
		return Batch{}, fmt.Errorf("calendar: store batch results: %w", err)
	}
	return batch, nil
}

// GetBatch loads a stored batch.
func (s *Service) GetBatch(ctx context.Context, batchID string) (Batch, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return Batch{}, ErrBatchNotFound
	}
	var batch Batch
	found, err := s.results.GetJSON(ctx, batchKey(batchID), &batch)
	if err != nil {
		return Batch{}, err
	}
	if !found {
		return Batch{}, ErrBatchNotFound
	}
	return batch, nil
}

func batchKey(id string) string {
	return "batch:" + id
}
