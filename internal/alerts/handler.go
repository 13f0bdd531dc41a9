package alerts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/threadline-retail/threadline/internal/platform/httpx"
)

// Handler exposes the low-stock alert endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/alerts/low-stock", h.lowStock)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(r.URL.Query().Get("threshold"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "threshold must be an integer")
		return
	}
	alerts, err := h.service.Evaluate(r.Context(), threshold)
	if err != nil {
		if errors.Is(err, ErrInvalidThreshold) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("evaluate low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}
