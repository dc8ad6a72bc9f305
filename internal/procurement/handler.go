package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/platform/httpx"
	"github.com/odyssey-erp/custody/internal/rbac"
	"github.com/odyssey-erp/custody/internal/shared"
)

// Handler manages purchase receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCustodyView, rbac.PermMasterView))
		r.Get("/purchase-receipts", h.list)
		r.Get("/purchase-receipts/{name}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMasterEdit))
		r.Post("/purchase-receipts", h.create)
		r.Post("/purchase-receipts/{name}/submit", h.submit)
	})
}

type createRequest struct {
	Name         string        `json:"name"`
	Company      string        `json:"company" validate:"required"`
	Supplier     string        `json:"supplier"`
	SupplierName string        `json:"supplier_name"`
	PostingDate  string        `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
	Items        []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type lineRequest struct {
	ItemCode    string          `json:"item_code" validate:"required"`
	ItemName    string          `json:"item_name"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	UOM         string          `json:"uom"`
	Warehouse   string          `json:"warehouse"`
	Rate        decimal.Decimal `json:"rate"`
	Asset       string          `json:"asset"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, limit, offset := shared.PageFromQuery(q)
	filters := ListFilters{
		Company:  q.Get("company"),
		Supplier: q.Get("supplier"),
		Search:   q.Get("search"),
	}
	if raw := q.Get("docstatus"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			status := DocStatus(v)
			filters.DocStatus = &status
		}
	}
	items, total, err := h.service.List(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list purchase receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, map[string]string{"body": err.Error()})
		return
	}
	input := CreateReceiptInput{
		Name:         req.Name,
		Company:      req.Company,
		Supplier:     req.Supplier,
		SupplierName: req.SupplierName,
	}
	if req.PostingDate != "" {
		input.PostingDate, _ = time.Parse("2006-01-02", req.PostingDate)
	}
	for _, line := range req.Items {
		input.Lines = append(input.Lines, ReceiptLineInput(line))
	}
	pr, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.SubmitReceipt(r.Context(), name); err != nil {
		h.logger.Error("submit purchase receipt", slog.Any("error", err), slog.String("name", name))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"name": name, "docstatus": DocStatusSubmitted})
}
