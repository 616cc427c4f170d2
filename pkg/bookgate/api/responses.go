package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// ErrorResponse is the JSON error envelope for all API endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps a service error to an HTTP status and a stable
// machine-readable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, bookgate.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, bookgate.ErrResourceNotFound):
		return http.StatusNotFound, "resource_not_found"
	case errors.Is(err, bookgate.ErrCodeNotFound):
		return http.StatusNotFound, "code_not_found"
	case errors.Is(err, bookgate.ErrGrantNotFound):
		return http.StatusNotFound, "grant_not_found"
	case errors.Is(err, bookgate.ErrFileNotFound):
		return http.StatusNotFound, "file_not_found"
	case errors.Is(err, bookgate.ErrCodeExists):
		return http.StatusConflict, "code_exists"
	case errors.Is(err, bookgate.ErrAlreadyRedeemed):
		return http.StatusConflict, "already_redeemed"
	case errors.Is(err, bookgate.ErrForbidden):
		return http.StatusForbidden, "role_forbidden"
	case errors.Is(err, bookgate.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, bookgate.ErrCodeExpired):
		return http.StatusGone, "code_expired"
	case errors.Is(err, bookgate.ErrCodeInactive):
		return http.StatusGone, "code_inactive"
	case errors.Is(err, bookgate.ErrCodeOrphaned):
		return http.StatusConflict, "code_orphaned"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "an internal error occurred"
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: "invalid_input", Message: message})
}
