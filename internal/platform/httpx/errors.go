package httpx

import (
	"errors"
	"net/http"

	"github.com/threadline-retail/threadline/internal/shared"
)

// RespondError maps cross-cutting errors to HTTP responses. Module handlers
// translate their own sentinels first and fall back to this for the rest.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
