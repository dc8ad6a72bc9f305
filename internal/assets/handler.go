package assets

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/platform/httpx"
	"github.com/odyssey-erp/custody/internal/rbac"
)

// Handler exposes the asset registry.
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

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCustodyView, rbac.PermMasterView))
		r.Get("/assets", h.listAvailable)
		r.Get("/assets/{name}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMasterEdit))
		r.Put("/assets/{name}", h.save)
	})
}

type saveRequest struct {
	AssetName           string          `json:"asset_name"`
	ItemCode            string          `json:"item_code" validate:"required"`
	Company             string          `json:"company" validate:"required"`
	Location            string          `json:"location"`
	Warehouse           string          `json:"warehouse"`
	PurchaseReceipt     string          `json:"purchase_receipt"`
	PurchaseReceiptItem string          `json:"purchase_receipt_item"`
	GrossPurchaseAmount decimal.Decimal `json:"gross_purchase_amount"`
	Status              string          `json:"status" validate:"omitempty,oneof=Draft Submitted 'In Use' Scrapped Sold"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Available(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, map[string]string{"body": err.Error()})
		return
	}
	saved, err := h.service.Save(r.Context(), Asset{
		Name:                chi.URLParam(r, "name"),
		AssetName:           req.AssetName,
		ItemCode:            req.ItemCode,
		Company:             req.Company,
		Location:            req.Location,
		Warehouse:           req.Warehouse,
		PurchaseReceipt:     req.PurchaseReceipt,
		PurchaseReceiptItem: req.PurchaseReceiptItem,
		GrossPurchaseAmount: req.GrossPurchaseAmount,
		Status:              req.Status,
	})
	if err != nil {
		h.logger.Error("save asset", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}
