package custody

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody/internal/rbac"
	"github.com/odyssey-erp/custody/internal/shared"
)

type grantAll []string

func (g grantAll) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return g, nil
}

type fakePDF struct{}

func (fakePDF) RenderReceipt(ctx context.Context, r Receipt) ([]byte, error) {
	return []byte("%PDF-1.7 " + r.Name), nil
}

func newTestRouter(t *testing.T, f *fixture, perms ...string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, fakePDF{}, rbac.Middleware{Service: grantAll(perms), Logger: logger})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), 42)))
		})
	})
	r.Route("/api", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateFromPurchaseReceipt(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(t, f, rbac.PermCustodyCreate, rbac.PermCustodyView)

	rr := do(t, h, http.MethodPost, "/api/custody/from-purchase-receipt", `{"source_name":"PR-0001"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result CreateResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, "CR-2026-00001", result.Name)
	require.Equal(t, IndicatorGreen, result.Messages[0].Indicator)

	rr = do(t, h, http.MethodGet, "/api/custody-receipts/CR-2026-00001", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec Receipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Len(t, rec.Items, 4)
	require.Equal(t, "AST-0001", rec.Items[0].Asset)

	rr = do(t, h, http.MethodGet, "/api/custody-receipts?docstatus=0", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":1`)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(t, f, rbac.PermCustodyCreate, rbac.PermCustodyView)

	rr := do(t, h, http.MethodPost, "/api/custody/from-purchase-receipt", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/custody/from-employee", `{"employee":"EMP-001","assets":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/custody-receipts?docstatus=9", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/custody/from-asset", `{"asset_name":"AST-404"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerEnforcesPermissions(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(t, f, rbac.PermCustodyView)

	rr := do(t, h, http.MethodPost, "/api/custody/from-purchase-receipt", `{"source_name":"PR-0001"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/custody/debug/purchase-receipts/PR-0001", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/custody/employees/EMP-001/available-assets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "AST-0001")
}

func TestHandlerSubmitValidationAndPDF(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(t, f, rbac.PermCustodyCreate, rbac.PermCustodyView, rbac.PermCustodySubmit, rbac.PermCustodyCancel)

	rr := do(t, h, http.MethodPost, "/api/custody/from-asset", `{"asset_name":"AST-0001"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var result CreateResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))

	rr = do(t, h, http.MethodPost, "/api/custody-receipts/"+result.Name+"/submit", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "employee is mandatory for submitting custody receipt")

	rr = do(t, h, http.MethodPost, "/api/custody-receipts/"+result.Name+"/cancel", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/custody-receipts/"+result.Name+"/pdf", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rr.Body.String(), "%PDF"))
}
