package calendar

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultHoursPerDay is the nominal length of a business day.
const DefaultHoursPerDay = 8

// scanLimit bounds how many consecutive closed days are walked before an
// office is declared to have no business days at all.
const scanLimit = 366 + 7

// MaxExtensionCap is the largest MaxExtensionDays an office may carry.
const MaxExtensionCap = 366

// MaxBusinessDays bounds a single AddBusinessDays walk, roughly a century
// of working days.
const MaxBusinessDays = 26000

const (
	causeWeekend = "weekend"
	causeHoliday = "holiday"
)

// IsHoliday reports whether date matches any holiday of the office.
func IsHoliday(date Date, office OfficeCalendarProfile) bool {
	for _, h := range office.Holidays {
		if h.IsRecurring {
			if h.Date.SameDay(date) {
				return true
			}
			continue
		}
		if h.Date == date {
			return true
		}
	}
	return false
}

// IsBusinessDay reports whether the weekly template marks the weekday as
// working and the date is not a holiday. A weekday absent from the
// template is not a business day.
func IsBusinessDay(date Date, office OfficeCalendarProfile) bool {
	hours, ok := office.BusinessHours[date.Weekday()]
	if !ok || !hours.IsWorkingDay {
		return false
	}
	return !IsHoliday(date, office)
}

// BusinessHoursForDate returns the opening window, or nil when the date is
// not a business day.
func BusinessHoursForDate(date Date, office OfficeCalendarProfile) *BusinessWindow {
	if !IsBusinessDay(date, office) {
		return nil
	}
	hours := office.BusinessHours[date.Weekday()]
	return &BusinessWindow{StartTime: hours.StartTime, EndTime: hours.EndTime}
}

type office struct {
	profile OfficeCalendarProfile
	loc     *time.Location
	err     error
}

// Calculator computes deadlines over an immutable snapshot of office
// calendars. It is safe for concurrent use.
type Calculator struct {
	offices     map[string]*office
	hoursPerDay float64
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithHoursPerDay overrides the nominal business day length.
func WithHoursPerDay(hours float64) Option {
	return func(c *Calculator) {
		if hours > 0 && !math.IsInf(hours, 0) {
			c.hoursPerDay = hours
		}
	}
}

// NewCalculator indexes the profiles by id; the first profile of an id
// wins. Offices with an unusable time zone are kept and fail on use.
func NewCalculator(profiles []OfficeCalendarProfile, opts ...Option) *Calculator {
	c := &Calculator{offices: make(map[string]*office, len(profiles)), hoursPerDay: DefaultHoursPerDay}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range profiles {
		if _, exists := c.offices[p.ID]; exists {
			continue
		}
		o := &office{profile: p}
		if strings.TrimSpace(p.Timezone) == "" {
			o.err = configError(p.ID, nil, "timezone missing")
		} else if loc, err := time.LoadLocation(p.Timezone); err != nil {
			o.err = configError(p.ID, err, "invalid timezone %q", p.Timezone)
		} else {
			o.loc = loc
		}
		if o.err == nil {
			if limit := p.EscalationRules.MaxExtensionDays; limit < 0 || limit > MaxExtensionCap {
				o.err = configError(p.ID, nil, "max extension days %d outside [0, %d]", limit, MaxExtensionCap)
			}
		}
		c.offices[p.ID] = o
	}
	return c
}

// HoursPerDay returns the nominal business day length in use.
func (c *Calculator) HoursPerDay() float64 {
	return c.hoursPerDay
}

// Office returns the profile registered under id.
func (c *Calculator) Office(id string) (OfficeCalendarProfile, error) {
	o, err := c.lookup(id)
	if err != nil {
		return OfficeCalendarProfile{}, err
	}
	return o.profile, nil
}

func (c *Calculator) lookup(id string) (*office, error) {
	o, ok := c.offices[id]
	if !ok {
		return nil, configError(id, ErrUnknownOffice, "unknown office")
	}
	if o.err != nil {
		return nil, o.err
	}
	return o, nil
}

// causes lists why the office-local date is closed; empty means open. A
// weekday missing from the template is a configuration error.
func (o *office) causes(date Date) ([]string, error) {
	hours, ok := o.profile.BusinessHours[date.Weekday()]
	if !ok {
		return nil, configError(o.profile.ID, nil, "business hours missing for %s", date.Weekday())
	}
	var out []string
	if !hours.IsWorkingDay {
		out = append(out, causeWeekend)
	}
	if IsHoliday(date, o.profile) {
		out = append(out, causeHoliday)
	}
	return out, nil
}

// Probe describes the office-local day containing at.
func (c *Calculator) Probe(at time.Time, officeID string) (DayProbe, error) {
	o, err := c.lookup(officeID)
	if err != nil {
		return DayProbe{}, err
	}
	date := DateOf(at.In(o.loc))
	causes, err := o.causes(date)
	if err != nil {
		return DayProbe{}, err
	}
	return DayProbe{
		OfficeID:      officeID,
		Date:          date,
		Weekday:       date.Weekday().String(),
		IsBusinessDay: len(causes) == 0,
		IsHoliday:     IsHoliday(date, o.profile),
		Hours:         BusinessHoursForDate(date, o.profile),
	}, nil
}

// AddBusinessDays advances start by n business days in the office's local
// calendar, keeping the wall-clock time of start. Closed days do not
// count. n = 0 returns start.
func (c *Calculator) AddBusinessDays(start time.Time, n int, officeID string) (time.Time, error) {
	if n < 0 || n > MaxBusinessDays {
		return time.Time{}, fmt.Errorf("%w: %d business days", ErrInvalidDuration, n)
	}
	o, err := c.lookup(officeID)
	if err != nil {
		return time.Time{}, err
	}
	local := start.In(o.loc)
	if n == 0 {
		return local, nil
	}
	offset := 0
	for counted := 0; counted < n; {
		closedRun := 0
		for {
			offset++
			causes, err := o.causes(DateOf(local.AddDate(0, 0, offset)))
			if err != nil {
				return time.Time{}, err
			}
			if len(causes) == 0 {
				break
			}
			closedRun++
			if closedRun >= scanLimit {
				return time.Time{}, configError(officeID, nil, "no business day within %d days", scanLimit)
			}
		}
		counted++
	}
	return local.AddDate(0, 0, offset), nil
}

// AdjustDeadline moves a candidate deadline landing on a closed day to the
// next business day, honouring the office's escalation rules. The
// extension never exceeds MaxExtensionDays; when the cap is reached the
// result is candidate + MaxExtensionDays with CapExceeded set and the
// office's fallback ids attached.
func (c *Calculator) AdjustDeadline(candidate time.Time, officeID string) (Adjustment, error) {
	o, err := c.lookup(officeID)
	if err != nil {
		return Adjustment{}, err
	}
	local := candidate.In(o.loc)
	causes, err := o.causes(DateOf(local))
	if err != nil {
		return Adjustment{}, err
	}
	if len(causes) == 0 {
		return Adjustment{AdjustedDeadline: local}, nil
	}

	rules := o.profile.EscalationRules
	for _, cause := range causes {
		if (cause == causeWeekend && !rules.ExtendDeadlinesOnWeekends) ||
			(cause == causeHoliday && !rules.ExtendDeadlinesOnHolidays) {
			return Adjustment{
				AdjustedDeadline: local,
				Reason:           cause + " (extension disabled)",
				OptedOut:         true,
			}, nil
		}
	}

	seen := append([]string(nil), causes...)
	for day := 1; day <= rules.MaxExtensionDays; day++ {
		next := local.AddDate(0, 0, day)
		nextCauses, err := o.causes(DateOf(next))
		if err != nil {
			return Adjustment{}, err
		}
		if len(nextCauses) == 0 {
			return Adjustment{
				AdjustedDeadline: next,
				WasAdjusted:      true,
				Reason:           joinCauses(seen),
				ExtensionDays:    day,
			}, nil
		}
		seen = appendMissing(seen, nextCauses...)
	}

	limit := rules.MaxExtensionDays
	fallback := make([]string, len(rules.FallbackOffices))
	copy(fallback, rules.FallbackOffices)
	return Adjustment{
		AdjustedDeadline: local.AddDate(0, 0, limit),
		WasAdjusted:      limit > 0,
		Reason:           fmt.Sprintf("%s; extension capped at %d day(s)", joinCauses(seen), limit),
		ExtensionDays:    limit,
		CapExceeded:      true,
		FallbackOffices:  fallback,
	}, nil
}

// BusinessDaysFor converts business hours into whole business days,
// rounding up.
func (c *Calculator) BusinessDaysFor(hours float64) (int, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return 0, fmt.Errorf("%w: %v hours", ErrInvalidDuration, hours)
	}
	days := math.Ceil(hours / c.hoursPerDay)
	if days > MaxBusinessDays {
		return 0, fmt.Errorf("%w: %v hours exceeds %d business days", ErrInvalidDuration, hours, MaxBusinessDays)
	}
	return int(days), nil
}

// ComputeDeadline derives the business day count from the required hours,
// advances the submission time by that many business days and adjusts the
// result for the office's escalation rules.
func (c *Calculator) ComputeDeadline(req DeadlineRequest) (DeadlineResult, error) {
	days, err := c.BusinessDaysFor(req.RequiredBusinessHours)
	if err != nil {
		return DeadlineResult{}, err
	}
	original, err := c.AddBusinessDays(req.SubmittedAt, days, req.OfficeID)
	if err != nil {
		return DeadlineResult{}, err
	}
	adj, err := c.AdjustDeadline(original, req.OfficeID)
	if err != nil {
		return DeadlineResult{}, err
	}
	return DeadlineResult{
		OfficeID:         req.OfficeID,
		SubmittedAt:      req.SubmittedAt,
		BusinessDays:     days,
		OriginalDeadline: original,
		Adjustment:       adj,
	}, nil
}

func joinCauses(causes []string) string {
	return strings.Join(causes, " and ")
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
