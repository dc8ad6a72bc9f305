package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody/internal/rbac"
	"github.com/odyssey-erp/custody/internal/shared"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastFilter TimelineFilters
	lastOffset int
	lastLimit  int
}

func (s *stubTimelineRepo) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = filters, offset, limit
	end := offset + limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastFilter = filters
	var out []TimelineRow
	for _, row := range s.rows {
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		if filters.EntityID != "" && row.EntityID != filters.EntityID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func sampleRows() []TimelineRow {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []TimelineRow{
		{At: at, Actor: "keeper@custody.local", Action: "custody_receipt.submit", Entity: "custody_receipt", EntityID: "CR-2026-00001"},
		{At: at.Add(-time.Hour), Actor: "keeper@custody.local", Action: "custody_receipt.create", Entity: "custody_receipt", EntityID: "CR-2026-00001", Meta: map[string]any{"source": "purchase_receipt"}},
		{At: at.Add(-2 * time.Hour), ActorID: 3, Action: "purchase_receipt.submit", Entity: "purchase_receipt", EntityID: "PR-2026-00001"},
	}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows()}
	svc := NewService(repo)

	first, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2, Entity: "  custody_receipt "})
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)
	require.Equal(t, "custody_receipt", repo.lastFilter.Entity)

	second, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, second.Rows, 1)
	require.False(t, second.Paging.HasNext)
	require.Equal(t, 1, second.Paging.PrevPage)
	require.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Equal(t, maxPageSize+1, repo.lastLimit)
	require.NotNil(t, result.Rows)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "At,Actor,Action,Entity,Entity ID,Meta", lines[0])
	require.Contains(t, lines[2], `"{""source"":""purchase_receipt""}"`)
	require.Contains(t, lines[3], ",3,purchase_receipt.submit,")
}

type grant []string

func (g grant) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return g, nil
}

func newTestRouter(repo Repository, perms ...string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo), rbac.Middleware{Service: grant(perms), Logger: logger})
	h.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), 1)))
		})
	})
	r.Route("/audit", h.MountRoutes)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlerTimelineDefaultsToLastThirtyDays(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows()}
	rec := get(newTestRouter(repo, rbac.PermAuditView), "/audit/timeline?entity=custody_receipt")
	require.Equal(t, http.StatusOK, rec.Code)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 3)
	require.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)
	require.Equal(t, time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)
}

func TestHandlerTimelineRejectsBadRange(t *testing.T) {
	h := newTestRouter(&stubTimelineRepo{}, rbac.PermAuditView)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit/timeline?from=2026-03-10&to=2026-03-01").Code)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit/timeline?page=0").Code)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit/timeline?to=yesterday").Code)
}

func TestHandlerHistoryAndCSV(t *testing.T) {
	h := newTestRouter(&stubTimelineRepo{rows: sampleRows()}, rbac.PermAuditView)

	rec := get(h, "/audit/custody_receipt/CR-2026-00001")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []TimelineRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)

	csvRec := get(h, "/audit/timeline.csv")
	require.Equal(t, http.StatusOK, csvRec.Code)
	require.Equal(t, "text/csv; charset=utf-8", csvRec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(csvRec.Body.String(), "At,Actor"))
}

func TestHandlerRequiresAuditPermission(t *testing.T) {
	h := newTestRouter(&stubTimelineRepo{}, rbac.PermCustodyView)
	require.Equal(t, http.StatusForbidden, get(h, "/audit/timeline").Code)
}
