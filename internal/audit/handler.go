package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/custody/internal/platform/httpx"
	"github.com/odyssey-erp/custody/internal/rbac"
)

const (
	defaultDateRange = 30 * 24 * time.Hour
	maxDateRange     = 366 * 24 * time.Hour
)

// TimelineService defines the reads the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
	History(ctx context.Context, entity, entityID string) ([]TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAuditView))
		r.Get("/timeline", h.timeline)
		r.Get("/timeline.csv", h.exportCSV)
		r.Get("/{entity}/{id}", h.history)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, field := h.parseFilters(r)
	if field != "" {
		httpx.ValidationProblem(w, map[string]string{field: "invalid"})
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filters, field := h.parseFilters(r)
	if field != "" {
		httpx.ValidationProblem(w, map[string]string{field: "invalid"})
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if err := WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id := chi.URLParam(r, "id")
	rows, err := h.service.History(r.Context(), entity, id)
	if err != nil {
		h.logger.Error("load document history", slog.Any("error", err), slog.String("entity", entity), slog.String("id", id))
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

// parseFilters returns the name of the first invalid query field, if any.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, string) {
	q := r.URL.Query()
	now := h.now().UTC()

	toDay := now.Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, "to"
		}
		toDay = parsed
	}
	fromDay := toDay.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, "from"
		}
		fromDay = parsed
	}
	if fromDay.After(toDay) || toDay.Sub(fromDay) > maxDateRange {
		return TimelineFilters{}, "range"
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, "page"
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, "page_size"
		}
		pageSize = parsed
	}

	return TimelineFilters{
		From:     fromDay,
		To:       toDay.Add(24 * time.Hour),
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, ""
}
