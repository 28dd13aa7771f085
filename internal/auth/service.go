package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrMalformedToken indicates a bearer value that is not "<id>.<secret>".
var ErrMalformedToken = errors.New("auth: malformed token")

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now, logger: slog.Default()}
}

// WithLogger sets the logger used for non-fatal repository failures.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithCost overrides the bcrypt cost, mainly for tests.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Authenticate validates a bearer value and returns its principal.
func (s *Service) Authenticate(ctx context.Context, bearer string) (shared.Principal, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(bearer), ".")
	if !ok || id == "" || secret == "" {
		return shared.Principal{}, ErrMalformedToken
	}
	token, err := s.repo.FindToken(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: find token: %w", err)
	}
	if !token.IsActive {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	now := s.now()
	if token.Expired(now) {
		return shared.Principal{}, shared.ErrTokenExpired
	}
	if err := s.repo.TouchToken(ctx, token.ID, now.UTC()); err != nil {
		s.logger.Warn("touch api token", slog.String("token_id", token.ID), slog.Any("error", err))
	}
	return shared.Principal{UserID: token.UserID, TokenID: token.ID, Name: token.Name}, nil
}

// Issue creates a token for userID. A zero ttl never expires.
func (s *Service) Issue(ctx context.Context, userID int64, name string, ttl time.Duration) (IssuedToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return IssuedToken{}, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: hash secret: %w", err)
	}
	now := s.now().UTC()
	token := APIToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		SecretHash: string(hash),
		IsActive:   true,
		CreatedAt:  now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token.ID + "." + secret, Info: token}, nil
}

// Revoke deactivates a token owned by userID.
func (s *Service) Revoke(ctx context.Context, userID int64, tokenID string) error {
	ok, err := s.repo.RevokeToken(ctx, tokenID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}
