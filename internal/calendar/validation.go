package calendar

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the calendar struct rules
// registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = httpx.NewValidator()
		validate.RegisterStructValidation(validateDayHours, DayHours{})
		validate.RegisterStructValidation(validateProfile, OfficeCalendarProfile{})
	})
	return validate
}

// Validate checks a profile before it is stored.
func Validate(p OfficeCalendarProfile) error {
	return Validator().Struct(p)
}

func validateDayHours(sl validator.StructLevel) {
	d := sl.Current().Interface().(DayHours)
	if !d.IsWorkingDay || d.StartTime == "" || d.EndTime == "" {
		return
	}
	// zero-padded HH:MM compares lexically
	if d.StartTime >= d.EndTime {
		sl.ReportError(d.EndTime, "end_time", "EndTime", "after_start", "")
	}
}

func validateProfile(sl validator.StructLevel) {
	p := sl.Current().Interface().(OfficeCalendarProfile)
	type key struct {
		date      Date
		recurring bool
	}
	seen := make(map[key]struct{}, len(p.Holidays))
	for _, h := range p.Holidays {
		if h.Date.IsZero() {
			sl.ReportError(p.Holidays, "holidays", "Holidays", "date_required", "")
			return
		}
		k := key{date: h.Date, recurring: h.IsRecurring}
		if h.IsRecurring {
			k.date.Year = 0
		}
		if _, dup := seen[k]; dup {
			sl.ReportError(p.Holidays, "holidays", "Holidays", "unique_dates", "")
			return
		}
		seen[k] = struct{}{}
	}
	working := false
	for _, h := range p.BusinessHours {
		if h.IsWorkingDay {
			working = true
			break
		}
	}
	if len(p.BusinessHours) > 0 && !working {
		sl.ReportError(p.BusinessHours, "business_hours", "BusinessHours", "working_day", "")
	}
}
