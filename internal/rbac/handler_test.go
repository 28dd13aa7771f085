package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

func newAccessRouter(svc *Service, source PermissionSource) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc, Middleware{Source: source}).MountRoutes(r)
	return r
}

func withUser(req *http.Request, id int64) *http.Request {
	return req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: id}))
}

func TestHandlerAccessAndAssignments(t *testing.T) {
	store := &memStore{links: map[int64]map[int64]bool{7: {1: true}}}
	svc := NewService(store, &fakeResolver{}, nil, nil)
	router := newAccessRouter(svc, svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/me/access", nil), 7))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"user_id":7,"role_ids":[1],"permissions":["roles.edit","roles.view"]}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me/access", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// user 7 lacks roles.assign
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/users/8/roles/2", nil), 7))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/users/8/access", nil), 7))
	require.Equal(t, http.StatusOK, rr.Code)
}

type allowAll struct{}

func (allowAll) EffectivePermissions(context.Context, int64) ([]string, error) {
	return []string{"roles.assign"}, nil
}

func TestHandlerAssignmentErrors(t *testing.T) {
	store := &memStore{links: map[int64]map[int64]bool{}}
	svc := NewService(store, &fakeResolver{}, nil, nil)
	router := newAccessRouter(svc, allowAll{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/users/8/roles/2", nil), 1))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, store.links[8][2])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/users/8/roles/99", nil), 1))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodDelete, "/users/8/roles/5", nil), 1))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodDelete, "/users/x/roles/5", nil), 1))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
