package calendar

import "time"

// DayHours is the weekly template entry for one weekday. Times are
// wall-clock "HH:MM" in the office's zone.
type DayHours struct {
	IsWorkingDay bool   `json:"is_working_day" yaml:"is_working_day"`
	StartTime    string `json:"start_time,omitempty" yaml:"start_time" validate:"required_if=IsWorkingDay true,omitempty,hhmm"`
	EndTime      string `json:"end_time,omitempty" yaml:"end_time" validate:"required_if=IsWorkingDay true,omitempty,hhmm"`
}

// Holiday closes the office for a day. Recurring holidays match month and
// day every year.
type Holiday struct {
	Date        Date   `json:"date" yaml:"date"`
	Name        string `json:"name,omitempty" yaml:"name" validate:"max=120"`
	IsRecurring bool   `json:"is_recurring" yaml:"is_recurring"`
}

// EscalationRules control how deadlines landing on closed days move.
type EscalationRules struct {
	ExtendDeadlinesOnWeekends bool     `json:"extend_deadlines_on_weekends" yaml:"extend_deadlines_on_weekends"`
	ExtendDeadlinesOnHolidays bool     `json:"extend_deadlines_on_holidays" yaml:"extend_deadlines_on_holidays"`
	MaxExtensionDays          int      `json:"max_extension_days" yaml:"max_extension_days" validate:"gte=0,lte=366"`
	FallbackOffices           []string `json:"fallback_offices" yaml:"fallback_offices" validate:"dive,required,max=64"`
}

// OfficeCalendarProfile is the working calendar of one business location.
type OfficeCalendarProfile struct {
	ID              string                    `json:"id" yaml:"id" validate:"required,max=64"`
	Name            string                    `json:"name" yaml:"name" validate:"required,max=120"`
	Timezone        string                    `json:"timezone" yaml:"timezone" validate:"required,iana_tz"`
	BusinessHours   map[time.Weekday]DayHours `json:"business_hours" yaml:"business_hours" validate:"required,min=1,dive,keys,gte=0,lte=6,endkeys"`
	Holidays        []Holiday                 `json:"holidays" yaml:"holidays" validate:"dive"`
	EscalationRules EscalationRules           `json:"escalation_rules" yaml:"escalation_rules"`
	UpdatedAt       time.Time                 `json:"updated_at,omitempty" yaml:"-"`
}

// BusinessWindow is the configured opening window of a business day.
type BusinessWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// DeadlineRequest asks for a deadline a number of business hours after
// submission.
type DeadlineRequest struct {
	SubmittedAt           time.Time `json:"submitted_at" validate:"required"`
	RequiredBusinessHours float64   `json:"required_business_hours" validate:"gte=0,lte=200000"`
	OfficeID              string    `json:"office_id" validate:"required,max=64"`
}

// Adjustment is the outcome of moving a candidate deadline off closed days.
type Adjustment struct {
	AdjustedDeadline time.Time `json:"adjusted_deadline"`
	WasAdjusted      bool      `json:"was_adjusted"`
	Reason           string    `json:"reason,omitempty"`
	ExtensionDays    int       `json:"extension_days"`
	OptedOut         bool      `json:"opted_out,omitempty"`
	CapExceeded      bool      `json:"cap_exceeded,omitempty"`
	FallbackOffices  []string  `json:"fallback_offices,omitempty"`
}

// Outcome labels for adjustments.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeExtended  = "extended"
	OutcomeOptedOut  = "opted_out"
	OutcomeCapped    = "capped"
)

// Outcome classifies the adjustment for reporting.
func (a Adjustment) Outcome() string {
	switch {
	case a.CapExceeded:
		return OutcomeCapped
	case a.OptedOut:
		return OutcomeOptedOut
	case a.WasAdjusted:
		return OutcomeExtended
	default:
		return OutcomeUnchanged
	}
}

// DeadlineResult is a computed deadline before and after adjustment.
type DeadlineResult struct {
	OfficeID         string    `json:"office_id"`
	SubmittedAt      time.Time `json:"submitted_at"`
	BusinessDays     int       `json:"business_days"`
	OriginalDeadline time.Time `json:"original_deadline"`
	Adjustment
}

// DayProbe describes one office-local calendar day.
type DayProbe struct {
	OfficeID      string          `json:"office_id"`
	Date          Date            `json:"date"`
	Weekday       string          `json:"weekday"`
	IsBusinessDay bool            `json:"is_business_day"`
	IsHoliday     bool            `json:"is_holiday"`
	Hours         *BusinessWindow `json:"hours,omitempty"`
}
