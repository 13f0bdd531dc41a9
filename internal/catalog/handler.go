package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/threadline-retail/threadline/internal/platform/httpx"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.list)
	r.Post("/products", h.create)
	r.Get("/products/{id}", h.get)
	r.Patch("/products/{id}", h.updateFields)
	r.Post("/products/{id}/visibility", h.toggleVisibility)
	r.Post("/products/{id}/stock/adjust", h.adjustStock)
	r.Put("/products/{id}/stock", h.setStock)
}

type createProductRequest struct {
	ItemID    string         `json:"item_id" validate:"required,max=64"`
	Name      string         `json:"name" validate:"required,max=200"`
	Category  string         `json:"category" validate:"max=100"`
	Price     float64        `json:"price" validate:"gte=0"`
	CostPrice float64        `json:"cost_price" validate:"gte=0"`
	SizeStock map[string]int `json:"size_stock,omitempty"`
	FlatStock int            `json:"flat_stock" validate:"gte=0"`
}

type adjustStockRequest struct {
	SizeDeltas map[string]int `json:"size_deltas,omitempty"`
	Quantity   int            `json:"quantity,omitempty"`
	Reason     string         `json:"reason" validate:"max=500"`
}

type setStockRequest struct {
	SizeStock map[string]int `json:"size_stock,omitempty"`
	Quantity  *int           `json:"quantity,omitempty"`
}

type visibilityRequest struct {
	IsHidden bool `json:"is_hidden"`
}

type updateFieldsRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	Category        *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Price           *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	CostPrice       *float64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	ForceOutOfStock *bool    `json:"force_out_of_stock,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.Create(r.Context(), CreateProductInput{
		ItemID:    req.ItemID,
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		CostPrice: req.CostPrice,
		SizeStock: req.SizeStock,
		FlatStock: req.FlatStock,
		Actor:     shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := ListFilter{
		Category:      q.Get("category"),
		IncludeHidden: q.Get("include_hidden") == "true",
		Limit:         limit,
	}
	products, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.AdjustStock(r.Context(), AdjustStockInput{
		ProductID:  id,
		SizeDeltas: req.SizeDeltas,
		FlatDelta:  req.Quantity,
		Reason:     req.Reason,
		Actor:      shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req setStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	result, err := h.service.SetStock(r.Context(), SetStockInput{
		ProductID: id,
		SizeStock: req.SizeStock,
		FlatStock: req.Quantity,
		Actor:     shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) toggleVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.service.ToggleVisibility(r.Context(), id, req.IsHidden, shared.ActorFromContext(r.Context()).ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"is_hidden": req.IsHidden})
}

func (h *Handler) updateFields(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req updateFieldsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.UpdateFields(r.Context(), id, UpdateFieldsInput{
		Name:            req.Name,
		Category:        req.Category,
		Price:           req.Price,
		CostPrice:       req.CostPrice,
		ForceOutOfStock: req.ForceOutOfStock,
	}, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Product Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrItemIDTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate Item", err.Error())
	case errors.Is(err, ErrInvalidStockInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
