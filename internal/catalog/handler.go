package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-crm/internal/platform/httpx"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Handler serves the product catalog endpoints.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// Routes mounts the catalog routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}

	q := r.URL.Query()
	filters := ListFilters{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		SortBy:   q.Get("sort_by"),
		SortDir:  q.Get("sort_dir"),
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		filters.IsActive = &active
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}

	products, total, err := h.service.List(r.Context(), identity.CompanyID, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       products,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be a UUID")
		return
	}

	product, err := h.service.Get(r.Context(), identity.CompanyID, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}

	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validateForm(w, form); err != nil {
		return
	}

	product, err := h.service.Create(r.Context(), Product{
		CompanyID:     identity.CompanyID,
		Name:          form.Name,
		ReferenceNo:   form.ReferenceNo,
		Category:      form.Category,
		Price:         form.Price,
		MinStockLevel: form.MinStockLevel,
		ReorderLevel:  form.ReorderLevel,
		BinLocation:   form.BinLocation,
		IsActive:      form.IsActive,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be a UUID")
		return
	}

	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validateForm(w, form); err != nil {
		return
	}

	err = h.service.Update(r.Context(), identity.CompanyID, id, Product{
		CompanyID:     identity.CompanyID,
		Name:          form.Name,
		ReferenceNo:   form.ReferenceNo,
		Category:      form.Category,
		Price:         form.Price,
		MinStockLevel: form.MinStockLevel,
		ReorderLevel:  form.ReorderLevel,
		BinLocation:   form.BinLocation,
		IsActive:      form.IsActive,
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be a UUID")
		return
	}

	if err := h.service.Deactivate(r.Context(), identity.CompanyID, id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) validateForm(w http.ResponseWriter, form ProductForm) error {
	if err := h.validator.Struct(form); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.ProblemWithFields(w, http.StatusUnprocessableEntity, "Validation Failed", "payload failed validation", fields)
		return err
	}
	return nil
}
