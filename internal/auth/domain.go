package auth

import "time"

// APIToken is a long-lived credential owned by a user. Only a bcrypt hash
// of the secret is stored.
type APIToken struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// IssuedToken carries the plain bearer value, shown exactly once.
type IssuedToken struct {
	Token string   `json:"token"`
	Info  APIToken `json:"info"`
}
