package custody

import (
	"context"
	"errors"
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

// PDFRenderer turns a receipt into its printable PDF.
type PDFRenderer interface {
	RenderReceipt(ctx context.Context, r Receipt) ([]byte, error)
}

// Handler exposes custody endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	pdf      PDFRenderer
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers custody routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/custody", func(r chi.Router) {
		r.With(h.rbac.RequireAll(rbac.PermCustodyCreate)).Post("/from-purchase-receipt", h.fromPurchaseReceipt)
		r.With(h.rbac.RequireAll(rbac.PermCustodyCreate)).Post("/from-employee", h.fromEmployee)
		r.With(h.rbac.RequireAll(rbac.PermCustodyCreate)).Post("/from-asset", h.fromAsset)
		r.With(h.rbac.RequireAny(rbac.PermCustodyView)).Get("/employees/{employee}/available-assets", h.availableAssets)
		r.With(h.rbac.RequireAll(rbac.PermCustodyDebug)).Get("/debug/purchase-receipts/{name}", h.debug)
	})
	r.Route("/custody-receipts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.PermCustodyView))
			r.Get("/", h.list)
			r.Get("/{name}", h.show)
			r.Get("/{name}/pdf", h.printPDF)
		})
		r.With(h.rbac.RequireAll(rbac.PermCustodyCreate)).Post("/", h.create)
		r.With(h.rbac.RequireAll(rbac.PermCustodyEdit)).Put("/{name}", h.update)
		r.With(h.rbac.RequireAll(rbac.PermCustodyEdit)).Delete("/{name}", h.remove)
		r.With(h.rbac.RequireAll(rbac.PermCustodySubmit)).Post("/{name}/submit", h.submit)
		r.With(h.rbac.RequireAll(rbac.PermCustodyCancel)).Post("/{name}/cancel", h.cancel)
	})
}

type fromPurchaseReceiptRequest struct {
	SourceName string `json:"source_name" validate:"required"`
}

type fromEmployeeRequest struct {
	Employee    string   `json:"employee" validate:"required"`
	Assets      []string `json:"assets" validate:"required,min=1,dive,required"`
	PostingDate string   `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
}

type fromAssetRequest struct {
	AssetName string `json:"asset_name" validate:"required"`
	Employee  string `json:"employee"`
}

type draftRequest struct {
	Employee        string        `json:"employee"`
	Company         string        `json:"company"`
	PostingDate     string        `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
	Supplier        string        `json:"supplier"`
	SupplierName    string        `json:"supplier_name"`
	PurchaseDate    string        `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	PurchaseReceipt string        `json:"purchase_receipt"`
	Remarks         string        `json:"remarks" validate:"max=1000"`
	Items           []itemRequest `json:"items" validate:"dive"`
}

type itemRequest struct {
	ItemCode            string          `json:"item_code" validate:"required_without=Asset"`
	ItemName            string          `json:"item_name"`
	Description         string          `json:"description"`
	Qty                 decimal.Decimal `json:"qty"`
	UOM                 string          `json:"uom"`
	Warehouse           string          `json:"warehouse"`
	Asset               string          `json:"asset"`
	PurchaseReceipt     string          `json:"purchase_receipt"`
	PurchaseReceiptItem string          `json:"purchase_receipt_item"`
	Rate                decimal.Decimal `json:"rate"`
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func (req draftRequest) input() DraftInput {
	in := DraftInput{
		Employee:        req.Employee,
		Company:         req.Company,
		PostingDate:     parseDate(req.PostingDate),
		Supplier:        req.Supplier,
		SupplierName:    req.SupplierName,
		PurchaseDate:    parseDate(req.PurchaseDate),
		PurchaseReceipt: req.PurchaseReceipt,
		Remarks:         req.Remarks,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, Item{
			ItemCode:            it.ItemCode,
			ItemName:            it.ItemName,
			Description:         it.Description,
			Qty:                 it.Qty,
			UOM:                 it.UOM,
			Warehouse:           it.Warehouse,
			Asset:               it.Asset,
			PurchaseReceipt:     it.PurchaseReceipt,
			PurchaseReceiptItem: it.PurchaseReceiptItem,
			Rate:                it.Rate,
		})
	}
	return in
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, append([]any{slog.Any("error", err)}, attrs...)...)
	} else {
		h.logger.Warn(msg, append([]any{slog.Any("error", err)}, attrs...)...)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) fromPurchaseReceipt(w http.ResponseWriter, r *http.Request) {
	var req fromPurchaseReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CreateFromPurchaseReceipt(r.Context(), req.SourceName)
	if err != nil {
		h.fail(w, "create custody from purchase receipt", err, slog.String("purchase_receipt", req.SourceName))
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) fromEmployee(w http.ResponseWriter, r *http.Request) {
	var req fromEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CreateFromEmployee(r.Context(), EmployeeInput{
		Employee:    req.Employee,
		Assets:      req.Assets,
		PostingDate: parseDate(req.PostingDate),
	})
	if err != nil {
		h.fail(w, "create custody from employee", err, slog.String("employee", req.Employee))
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) fromAsset(w http.ResponseWriter, r *http.Request) {
	var req fromAssetRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CreateFromAsset(r.Context(), req.AssetName, req.Employee)
	if err != nil {
		h.fail(w, "create custody from asset", err, slog.String("asset", req.AssetName))
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) availableAssets(w http.ResponseWriter, r *http.Request) {
	employee := chi.URLParam(r, "employee")
	list, err := h.service.AvailableAssets(r.Context(), employee)
	if err != nil {
		h.fail(w, "available assets", err, slog.String("employee", employee))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employee": employee, "data": list})
}

func (h *Handler) debug(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Debug(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "debug purchase receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, limit, offset := shared.PageFromQuery(q)
	filters := ListFilters{
		Employee:        q.Get("employee"),
		Company:         q.Get("company"),
		PurchaseReceipt: q.Get("purchase_receipt"),
		Search:          q.Get("search"),
	}
	if raw := q.Get("docstatus"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 2 {
			httpx.ValidationProblem(w, map[string]string{"docstatus": "oneof"})
			return
		}
		status := DocStatus(v)
		filters.DocStatus = &status
	}
	list, total, err := h.service.List(r.Context(), limit, offset, filters)
	if err != nil {
		h.fail(w, "list custody receipts", err)
		return
	}
	if list == nil {
		list = []Receipt{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "get custody receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.CreateDraft(r.Context(), req.input())
	if err != nil {
		h.fail(w, "create custody receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !h.decode(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	rec, err := h.service.UpdateDraft(r.Context(), name, req.input())
	if err != nil {
		h.fail(w, "update custody receipt", err, slog.String("name", name))
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.Delete(r.Context(), name); err != nil {
		h.fail(w, "delete custody receipt", err, slog.String("name", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.service.Submit(r.Context(), name)
	if err != nil {
		h.fail(w, "submit custody receipt", err, slog.String("name", name))
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.service.Cancel(r.Context(), name)
	if err != nil {
		h.fail(w, "cancel custody receipt", err, slog.String("name", name))
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) printPDF(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.service.Get(r.Context(), name)
	if err != nil {
		h.fail(w, "print custody receipt", err, slog.String("name", name))
		return
	}
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "pdf rendering is not configured")
		return
	}
	pdf, err := h.pdf.RenderReceipt(r.Context(), rec)
	if err != nil {
		h.fail(w, "render custody receipt pdf", err, slog.String("name", name))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=\""+rec.Name+".pdf\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
