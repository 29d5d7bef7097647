// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/taskdeck/taskdeck/internal/attachments"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Sentinel errors for the handler layer.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Mutation failures arrive here after the store has already rolled back
// the optimistic change; the response carries the normalized message the
// form surfaces inline.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncstore.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, syncstore.ErrMutationFailed):
		Problem(w, http.StatusBadGateway, "Mutation Failed", err.Error())
	case errors.Is(err, syncstore.ErrFetchFailed):
		Problem(w, http.StatusBadGateway, "Fetch Failed", err.Error())
	case errors.Is(err, syncstore.ErrClosed):
		Problem(w, http.StatusServiceUnavailable, "Store Closed", err.Error())
	case errors.Is(err, session.ErrNotAuthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, session.ErrProfileSetup):
		Problem(w, http.StatusInternalServerError, "Profile Setup Failed", err.Error())
	case errors.Is(err, attachments.ErrTooLarge), errors.Is(err, attachments.ErrUnsupportedType):
		Problem(w, http.StatusBadRequest, "Invalid Attachment", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
