package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates an unknown or mismatched API token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired indicates an API token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
