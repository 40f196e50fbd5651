package stockledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-crm/internal/catalog"
	"github.com/meridian-crm/meridian-crm/internal/platform/httpx"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Handler serves the stock ledger endpoints.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// Routes mounts the stock entry routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	r.Get("/{id}/check", h.check)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/items", h.addItem)
	r.Delete("/{id}/items/{itemID}", h.removeItem)
	return r
}

// MovementRoutes mounts the stock movement listing.
func (h *Handler) MovementRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listMovements)
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
		Search:    q.Get("search"),
		EntryType: q.Get("entry_type"),
		Status:    q.Get("status"),
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filters.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filters.DateTo = &t
		}
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}

	entries, total, err := h.service.ListEntries(r.Context(), identity, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if entries == nil {
		entries = []StockEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       entries,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}

	var form EntryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if !h.validStruct(w, form) {
		return
	}

	input := CreateEntryInput{
		EntryType:         EntryType(form.EntryType),
		ReferenceType:     form.ReferenceType,
		ReferenceNumber:   form.ReferenceNumber,
		PartyType:         form.PartyType,
		PartyName:         form.PartyName,
		WarehouseLocation: form.WarehouseLocation,
		Remarks:           form.Remarks,
	}
	if form.EntryDate != nil {
		input.EntryDate = *form.EntryDate
	}
	for _, itemForm := range form.Items {
		item, err := itemInput(itemForm)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
			return
		}
		input.Items = append(input.Items, item)
	}

	entry, err := h.service.CreateEntry(r.Context(), identity, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), identity, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	var form EntryUpdateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	input := UpdateEntryInput{
		ReferenceType:     form.ReferenceType,
		ReferenceNumber:   form.ReferenceNumber,
		PartyType:         form.PartyType,
		PartyName:         form.PartyName,
		WarehouseLocation: form.WarehouseLocation,
		Remarks:           form.Remarks,
	}
	if form.EntryDate != nil {
		input.EntryDate = *form.EntryDate
	}
	entry, err := h.service.UpdateEntry(r.Context(), identity, entryID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteEntry(r.Context(), identity, entryID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	result, err := h.service.CheckEntry(r.Context(), identity, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Submit(r.Context(), identity, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Approve(r.Context(), identity, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	var form RejectForm
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
			return
		}
	}
	entry, err := h.service.Reject(r.Context(), identity, entryID, form.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	var form ItemForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if !h.validStruct(w, form) {
		return
	}
	input, err := itemInput(form)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	entry, err := h.service.AddItem(r.Context(), identity, entryID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, entryID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item id must be a UUID")
		return
	}
	entry, err := h.service.RemoveItem(r.Context(), identity, entryID, itemID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return
	}

	q := r.URL.Query()
	var filters MovementFilters
	if v := q.Get("product_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product_id must be a UUID")
			return
		}
		filters.ProductID = id
	}
	if v := q.Get("entry_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry_id must be a UUID")
			return
		}
		filters.EntryID = id
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 50
	}

	movements, total, err := h.service.ListMovements(r.Context(), identity, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if movements == nil {
		movements = []StockMovement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       movements,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) identityAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, uuid.UUID, bool) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Identity", "tenant and actor headers are required")
		return shared.Identity{}, uuid.Nil, false
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be a UUID")
		return shared.Identity{}, uuid.Nil, false
	}
	return identity, entryID, true
}

func (h *Handler) validStruct(w http.ResponseWriter, form any) bool {
	if err := h.validator.Struct(form); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.ProblemWithFields(w, http.StatusUnprocessableEntity, "Validation Failed", "payload failed validation", fields)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWithFields(w, http.StatusConflict, "Insufficient Stock", insufficient.Error(), insufficient.Violations)
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNoItems):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Product", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func itemInput(form ItemForm) (ItemInput, error) {
	productID, err := uuid.Parse(form.ProductID)
	if err != nil {
		return ItemInput{}, errors.New("stockledger: product_id must be a UUID")
	}
	return ItemInput{
		ProductID:    productID,
		Quantity:     form.Quantity,
		UnitPrice:    form.UnitPrice,
		BatchNumber:  form.BatchNumber,
		SerialNumber: form.SerialNumber,
		ExpiryDate:   form.ExpiryDate,
		BinLocation:  form.BinLocation,
	}, nil
}
