package trash

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/platform/httpx"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Handler wires HTTP endpoints for the trash module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs trash handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers trash routes. Product deletion lives here rather
// than in catalog because deletion is a trash-lifecycle operation.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Delete("/products/{id}", h.softDelete)
	r.Get("/trash", h.list)
	r.Post("/trash/{trashId}/restore", h.restore)
}

type softDeleteRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var req softDeleteRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = r.URL.Query().Get("reason")
	}
	entry, err := h.service.SoftDelete(r.Context(), id, shared.ActorFromContext(r.Context()).ID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	trashID, err := uuid.Parse(chi.URLParam(r, "trashId"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid trash entry id")
		return
	}
	product, err := h.service.Restore(r.Context(), trashID, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTrashEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Trash Entry Not Found", err.Error())
	case errors.Is(err, ErrNotRestorable):
		httpx.Problem(w, http.StatusConflict, "Not Restorable", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Product Not Found", err.Error())
	case errors.Is(err, catalog.ErrItemIDTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate Item", err.Error())
	default:
		h.logger.Error("trash request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
