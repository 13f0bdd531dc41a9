package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/platform/httpx"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bills", h.create)
	r.Get("/bills", h.list)
	r.Get("/bills/{billNumber}", h.getByNumber)
}

type createBillRequest struct {
	Items         []createBillItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount      float64                 `json:"discount" validate:"gte=0,lte=100"`
	Tax           float64                 `json:"tax" validate:"gte=0"`
	CustomerName  string                  `json:"customer_name" validate:"max=200"`
	CustomerPhone string                  `json:"customer_phone" validate:"max=32"`
	PaymentMethod string                  `json:"payment_method" validate:"required,max=32"`
	ExpectedTotal *float64                `json:"expected_total,omitempty" validate:"omitempty,gte=0"`
}

type createBillItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Size      string `json:"size" validate:"max=32"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateBillInput{
		Discount:      req.Discount,
		Tax:           req.Tax,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PaymentMethod: req.PaymentMethod,
		ExpectedTotal: req.ExpectedTotal,
		Actor:         shared.ActorFromContext(r.Context()).ID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateBillItem{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	bill, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	bills, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	billNumber := chi.URLParam(r, "billNumber")
	bill, err := h.service.GetByNumber(r.Context(), billNumber)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBillNotFound):
		httpx.Problem(w, http.StatusNotFound, "Bill Not Found", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Product Not Found", err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrEmptyBill), errors.Is(err, ErrInvalidBillInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrTotalsMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Totals Mismatch", err.Error())
	default:
		h.logger.Error("billing request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
