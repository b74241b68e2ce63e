package http

import (
	"errors"
	"net/http"

	"taxledger/internal/auth"
	"taxledger/internal/core"
	applog "taxledger/internal/log"
)

// writeError maps service errors onto status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		NewJSONResponse().Error(http.StatusBadRequest, bad.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NewJSONResponse().Error(http.StatusNotFound, "not found").Write(w)
	case errors.Is(err, core.ErrConflict):
		NewJSONResponse().Error(http.StatusConflict, err.Error()).Write(w)
	case core.ValidationError(err), errors.Is(err, auth.ErrPasswordTooLong):
		NewJSONResponse().Error(http.StatusUnprocessableEntity, err.Error()).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials):
		NewJSONResponse().Error(http.StatusUnauthorized, err.Error()).Write(w)
	case errors.Is(err, auth.ErrRegistrationDisabled):
		NewJSONResponse().Error(http.StatusForbidden, err.Error()).Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(
			r.Context(), "Request failed", err, applog.ComponentHTTP, operation,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
		NewJSONResponse().Error(http.StatusInternalServerError, "internal server error").Write(w)
	}
}
