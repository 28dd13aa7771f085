package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks calendar data that cannot support a computation.
	ErrConfiguration = errors.New("calendar: configuration error")
	// ErrUnknownOffice indicates an office id with no calendar profile.
	ErrUnknownOffice = errors.New("calendar: unknown office")
	// ErrInvalidDuration indicates a negative or non-finite duration.
	ErrInvalidDuration = errors.New("calendar: invalid duration")
	// ErrNotFound indicates a missing stored office profile.
	ErrNotFound = errors.New("calendar: office not found")
	// ErrInvalidBatch indicates an empty or oversized deadline batch.
	ErrInvalidBatch = errors.New("calendar: invalid batch")
	// ErrBatchNotFound indicates an unknown or expired deadline batch.
	ErrBatchNotFound = errors.New("calendar: batch not found")
)

// ConfigurationError describes why an office calendar is unusable.
type ConfigurationError struct {
	OfficeID string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("calendar: office %q: %s", e.OfficeID, e.Reason)
}

// Unwrap exposes ErrConfiguration and the underlying cause.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

func configError(officeID string, cause error, format string, args ...any) error {
	return &ConfigurationError{OfficeID: officeID, Reason: fmt.Sprintf(format, args...), Err: cause}
}
