package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	_ "github.com/odyssey-erp/odyssey-console/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	tokens   map[string]auth.APIToken
	touched  []string
	findErr  error
	touchErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{tokens: map[string]auth.APIToken{}}
}

func (s *stubRepo) FindToken(ctx context.Context, id string) (*auth.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	t, ok := s.tokens[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &t, nil
}

func (s *stubRepo) CreateToken(ctx context.Context, token auth.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *stubRepo) RevokeToken(ctx context.Context, id string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UserID != userID || !t.IsActive {
		return false, nil
	}
	t.IsActive = false
	s.tokens[id] = t
	return true, nil
}

func (s *stubRepo) TouchToken(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return s.touchErr
}

func (s *stubRepo) put(t *testing.T, id string, userID int64, secret string, active bool, expires *time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	s.tokens[id] = auth.APIToken{ID: id, UserID: userID, Name: "ci", SecretHash: string(hash), IsActive: active, ExpiresAt: expires}
}

func newAuthRouter(t *testing.T, repo auth.Repository) http.Handler {
	t.Helper()
	handler := auth.NewHandler(nil, auth.NewService(repo).WithCost(bcrypt.MinCost))
	r := chi.NewRouter()
	r.Use(handler.Middleware)
	r.Route("/auth", handler.MountRoutes)
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestMiddlewareAnonymousPassesThrough(t *testing.T) {
	router := newAuthRouter(t, newStubRepo())
	res := do(t, router, http.MethodGet, "/whoami", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "anonymous", res.Body.String())
}

func TestMiddlewareAuthenticatesToken(t *testing.T) {
	repo := newStubRepo()
	repo.put(t, "tok-1", 7, "s3cret", true, nil)
	router := newAuthRouter(t, repo)

	res := do(t, router, http.MethodGet, "/whoami", "tok-1.s3cret", "")
	require.Equal(t, http.StatusOK, res.Code)
	var p shared.Principal
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &p))
	require.Equal(t, int64(7), p.UserID)
	require.Equal(t, "tok-1", p.TokenID)
	require.Equal(t, []string{"tok-1"}, repo.touched)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	repo := newStubRepo()
	past := time.Now().Add(-time.Hour)
	repo.put(t, "live", 1, "good", true, nil)
	repo.put(t, "off", 1, "good", false, nil)
	repo.put(t, "old", 1, "good", true, &past)
	router := newAuthRouter(t, repo)

	cases := map[string]string{
		"wrong secret": "live.bad",
		"inactive":     "off.good",
		"unknown":      "nope.good",
		"malformed":    "livegood",
		"expired":      "old.good",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			res := do(t, router, http.MethodGet, "/whoami", token, "")
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}

	res := do(t, router, http.MethodGet, "/whoami", "old.good", "")
	require.Contains(t, res.Body.String(), "token expired")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueAndRevokeToken(t *testing.T) {
	repo := newStubRepo()
	repo.put(t, "boot", 3, "pw", true, nil)
	router := newAuthRouter(t, repo)

	res := do(t, router, http.MethodPost, "/auth/tokens", "", `{"name":"ci"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(t, router, http.MethodPost, "/auth/tokens", "boot.pw", `{"name":"deploy","ttl_seconds":3600}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var issued auth.IssuedToken
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &issued))
	require.Equal(t, int64(3), issued.Info.UserID)
	require.NotNil(t, issued.Info.ExpiresAt)
	require.True(t, strings.HasPrefix(issued.Token, issued.Info.ID+"."))
	require.NotContains(t, res.Body.String(), "secret_hash")

	res = do(t, router, http.MethodGet, "/whoami", issued.Token, "")
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, router, http.MethodDelete, "/auth/tokens/"+issued.Info.ID, "boot.pw", "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = do(t, router, http.MethodGet, "/whoami", issued.Token, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(t, router, http.MethodDelete, "/auth/tokens/"+issued.Info.ID, "boot.pw", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestIssueTokenValidation(t *testing.T) {
	repo := newStubRepo()
	repo.put(t, "boot", 3, "pw", true, nil)
	router := newAuthRouter(t, repo)

	res := do(t, router, http.MethodPost, "/auth/tokens", "boot.pw", `{"ttl_seconds":-1}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), `"name":"required"`)
	require.Contains(t, res.Body.String(), `"ttl_seconds":"gte=0"`)
}

func TestStoreFailureIsNotReportedAsBadCredentials(t *testing.T) {
	repo := newStubRepo()
	repo.put(t, "live", 1, "good", true, nil)
	repo.findErr = errors.New("connection refused")
	svc := auth.NewService(repo).WithCost(bcrypt.MinCost)

	_, err := svc.Authenticate(context.Background(), "live.good")
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrInvalidCredentials)
	require.ErrorIs(t, err, repo.findErr)

	res := do(t, newAuthRouter(t, repo), http.MethodGet, "/whoami", "live.good", "")
	require.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestTouchFailureIsLogged(t *testing.T) {
	repo := newStubRepo()
	repo.put(t, "live", 4, "good", true, nil)
	repo.touchErr = errors.New("read-only replica")
	var buf bytes.Buffer
	svc := auth.NewService(repo).WithCost(bcrypt.MinCost).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	p, err := svc.Authenticate(context.Background(), "live.good")
	require.NoError(t, err)
	require.Equal(t, int64(4), p.UserID)
	require.Contains(t, buf.String(), "touch api token")
	require.Contains(t, buf.String(), "read-only replica")
}
