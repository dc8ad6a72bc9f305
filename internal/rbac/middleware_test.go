package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody/internal/shared"
)

type stubPermissions struct {
	perms []string
	err   error
}

func (s stubPermissions) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.perms, s.err
}

func serve(mw func(http.Handler) http.Handler, actor int64) int {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != 0 {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireAnyGrantsWithOnePermission(t *testing.T) {
	m := Middleware{Service: stubPermissions{perms: []string{"Custody.View"}}}
	require.Equal(t, http.StatusNoContent, serve(m.RequireAny(PermCustodyView, PermCustodyEdit), 7))
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	m := Middleware{Service: stubPermissions{perms: []string{PermCustodyView}}}
	require.Equal(t, http.StatusForbidden, serve(m.RequireAll(PermCustodyView, PermCustodySubmit), 7))

	m = Middleware{Service: stubPermissions{perms: []string{PermCustodyView, PermCustodySubmit}}}
	require.Equal(t, http.StatusNoContent, serve(m.RequireAll(PermCustodyView, PermCustodySubmit), 7))
}

func TestRequireRejectsAnonymous(t *testing.T) {
	m := Middleware{Service: stubPermissions{perms: []string{PermCustodyView}}}
	require.Equal(t, http.StatusUnauthorized, serve(m.RequireAny(PermCustodyView), 0))
}

func TestRequireSurfacesLookupFailure(t *testing.T) {
	m := Middleware{Service: stubPermissions{err: errors.New("db down")}}
	require.Equal(t, http.StatusInternalServerError, serve(m.RequireAny(PermCustodyView), 3))
}

func TestNormalizePermissionsDedupes(t *testing.T) {
	require.Equal(t, []string{"custody.view"}, normalizePermissions([]string{" Custody.View", "custody.view", ""}))
}
