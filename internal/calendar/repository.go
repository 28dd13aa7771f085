package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-console/internal/platform/db"
)

// Repository defines persistence operations for office calendars.
type Repository interface {
	ListOffices(ctx context.Context) ([]OfficeCalendarProfile, error)
	GetOffice(ctx context.Context, id string) (OfficeCalendarProfile, error)
	UpsertOffice(ctx context.Context, p OfficeCalendarProfile) (OfficeCalendarProfile, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectOffices = `SELECT id, name, timezone, business_hours, escalation_rules, updated_at FROM office_calendars`

// ListOffices returns every office with its holidays.
func (r *PGRepository) ListOffices(ctx context.Context) ([]OfficeCalendarProfile, error) {
	rows, err := r.pool.Query(ctx, selectOffices+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OfficeCalendarProfile
	byID := map[string]int{}
	for rows.Next() {
		p, err := scanOffice(rows)
		if err != nil {
			return nil, err
		}
		byID[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := r.pool.Query(ctx, `SELECT office_id, holiday_date, name, is_recurring FROM office_holidays ORDER BY office_id, holiday_date`)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var officeID string
		h, err := scanHoliday(hrows, &officeID)
		if err != nil {
			return nil, err
		}
		if idx, ok := byID[officeID]; ok {
			out[idx].Holidays = append(out[idx].Holidays, h)
		}
	}
	return out, hrows.Err()
}

// GetOffice fetches one office by id.
func (r *PGRepository) GetOffice(ctx context.Context, id string) (OfficeCalendarProfile, error) {
	p, err := scanOffice(r.pool.QueryRow(ctx, selectOffices+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return OfficeCalendarProfile{}, ErrNotFound
	}
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT office_id, holiday_date, name, is_recurring FROM office_holidays WHERE office_id = $1 ORDER BY holiday_date`, id)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var officeID string
		h, err := scanHoliday(rows, &officeID)
		if err != nil {
			return OfficeCalendarProfile{}, err
		}
		p.Holidays = append(p.Holidays, h)
	}
	return p, rows.Err()
}

// UpsertOffice inserts or replaces an office and its holidays.
func (r *PGRepository) UpsertOffice(ctx context.Context, p OfficeCalendarProfile) (OfficeCalendarProfile, error) {
	hours, err := json.Marshal(p.BusinessHours)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	rules, err := json.Marshal(p.EscalationRules)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO office_calendars (id, name, timezone, business_hours, escalation_rules, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, timezone = EXCLUDED.timezone,
business_hours = EXCLUDED.business_hours, escalation_rules = EXCLUDED.escalation_rules, updated_at = NOW()`,
			p.ID, p.Name, p.Timezone, hours, rules)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM office_holidays WHERE office_id = $1`, p.ID); err != nil {
			return err
		}
		if len(p.Holidays) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, h := range p.Holidays {
			day := time.Date(h.Date.Year, h.Date.Month, h.Date.Day, 0, 0, 0, 0, time.UTC)
			batch.Queue(`INSERT INTO office_holidays (office_id, holiday_date, name, is_recurring) VALUES ($1, $2, $3, $4)`,
				p.ID, day, h.Name, h.IsRecurring)
		}
		results := tx.SendBatch(ctx, batch)
		for range p.Holidays {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("calendar: insert holiday: %w", err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	return r.GetOffice(ctx, p.ID)
}

func scanOffice(row pgx.Row) (OfficeCalendarProfile, error) {
	var p OfficeCalendarProfile
	var hours, rules []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Timezone, &hours, &rules, &p.UpdatedAt); err != nil {
		return OfficeCalendarProfile{}, err
	}
	if err := json.Unmarshal(hours, &p.BusinessHours); err != nil {
		return OfficeCalendarProfile{}, fmt.Errorf("calendar: decode business hours of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(rules, &p.EscalationRules); err != nil {
		return OfficeCalendarProfile{}, fmt.Errorf("calendar: decode escalation rules of %s: %w", p.ID, err)
	}
	return p, nil
}

func scanHoliday(row pgx.Row, officeID *string) (Holiday, error) {
	var h Holiday
	var day time.Time
	if err := row.Scan(officeID, &day, &h.Name, &h.IsRecurring); err != nil {
		return Holiday{}, err
	}
	h.Date = DateOf(day)
	return h, nil
}

var _ Repository = (*PGRepository)(nil)
