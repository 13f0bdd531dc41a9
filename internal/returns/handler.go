package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/platform/httpx"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Handler wires HTTP endpoints for the returns module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs returns handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers returns routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/returns", h.process)
	r.Get("/returns", h.list)
}

type processRequest struct {
	BillNumber    string                    `json:"bill_number" validate:"required"`
	Type          string                    `json:"type" validate:"required,oneof=return exchange"`
	Items         []requestedItemRequest    `json:"items" validate:"required,min=1,dive"`
	ExchangeItems []requestedExchangeItem   `json:"exchange_items,omitempty" validate:"omitempty,dive"`
	Reason        string                    `json:"reason" validate:"required"`
	CustomerName  string                    `json:"customer_name" validate:"max=200"`
	CustomerPhone string                    `json:"customer_phone" validate:"max=32"`
}

type requestedItemRequest struct {
	ItemID    string `json:"item_id" validate:"required"`
	Size      string `json:"size" validate:"max=32"`
	ReturnQty int    `json:"return_qty" validate:"required,gt=0"`
}

type requestedExchangeItem struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Size      string `json:"size" validate:"max=32"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ProcessInput{
		BillNumber:     req.BillNumber,
		Type:           ReturnType(req.Type),
		Reason:         req.Reason,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Actor:          shared.ActorFromContext(r.Context()).ID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, RequestedItem{ItemID: item.ItemID, Size: item.Size, ReturnQty: item.ReturnQty})
	}
	for _, item := range req.ExchangeItems {
		input.ExchangeItems = append(input.ExchangeItems, RequestedExchange{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	summary, err := h.service.Process(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrBillNotFound):
		httpx.Problem(w, http.StatusNotFound, "Bill Not Found", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Product Not Found", err.Error())
	case errors.Is(err, ErrInvalidReturnType), errors.Is(err, ErrMissingReason), errors.Is(err, ErrInvalidReturnQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSizeOutOfStock):
		httpx.Problem(w, http.StatusConflict, "Size Out Of Stock", err.Error())
	default:
		h.logger.Error("returns request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
