package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/custody/internal/masterdata/employees"
	"github.com/odyssey-erp/custody/internal/masterdata/items"
	"github.com/odyssey-erp/custody/internal/masterdata/shared"
	"github.com/odyssey-erp/custody/internal/platform/httpx"
	"github.com/odyssey-erp/custody/internal/rbac"
	internalShared "github.com/odyssey-erp/custody/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger    *slog.Logger
	items     *items.Service
	employees *employees.Service
	rbac      rbac.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, itemService *items.Service, employeeService *employees.Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, items: itemService, employees: employeeService, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermMasterView, rbac.PermCustodyView))
		r.Get("/items", h.listItems)
		r.Get("/items/{code}", h.showItem)
		r.Get("/employees", h.listEmployees)
		r.Get("/employees/{name}", h.showEmployee)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMasterEdit))
		r.Put("/items/{code}", h.saveItem)
		r.Put("/employees/{name}", h.saveEmployee)
	})
}

type itemRequest struct {
	ItemName     string `json:"item_name" validate:"required,max=140"`
	Description  string `json:"description"`
	StockUOM     string `json:"stock_uom" validate:"required,max=40"`
	IsFixedAsset bool   `json:"is_fixed_asset"`
	Disabled     bool   `json:"disabled"`
}

type employeeRequest struct {
	EmployeeName string `json:"employee_name" validate:"required,max=140"`
	Company      string `json:"company" validate:"required"`
	Department   string `json:"department"`
	Email        string `json:"email" validate:"omitempty,email"`
	Status       string `json:"status" validate:"omitempty,oneof=Active Inactive Left"`
}

func listFilters(r *http.Request) shared.ListFilters {
	_, _, limit, offset := internalShared.PageFromQuery(r.URL.Query())
	return shared.ListFilters{
		Limit:           limit,
		Offset:          offset,
		Search:          r.URL.Query().Get("search"),
		Company:         r.URL.Query().Get("company"),
		IncludeDisabled: r.URL.Query().Get("include_disabled") == "1",
	}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	list, total, err := h.items.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list, "total": total})
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.items.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, it)
}

func (h *Handler) saveItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	saved, err := h.items.Save(r.Context(), items.Item{
		Code:         chi.URLParam(r, "code"),
		Name:         req.ItemName,
		Description:  req.Description,
		StockUOM:     req.StockUOM,
		IsFixedAsset: req.IsFixedAsset,
		Disabled:     req.Disabled,
	})
	if err != nil {
		h.logger.Error("save item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	list, total, err := h.employees.List(r.Context(), listFilters(r))
	if err != nil {
		h.logger.Error("list employees", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list, "total": total})
}

func (h *Handler) showEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.employees.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) saveEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	saved, err := h.employees.Save(r.Context(), employees.Employee{
		Name:         chi.URLParam(r, "name"),
		EmployeeName: req.EmployeeName,
		Company:      req.Company,
		Department:   req.Department,
		Email:        req.Email,
		Status:       req.Status,
	})
	if err != nil {
		h.logger.Error("save employee", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
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
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}
