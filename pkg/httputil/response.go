package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteCreated writes a 201 with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a 200 with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a 404
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteServiceUnavailable writes a 503
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// WriteInternalError logs err and writes a generic 500.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).
		WithField("path", r.URL.Path).
		Error("request failed")
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteAuthError renders an access-control failure. An *auth.Error anywhere
// in err's chain supplies status and public message; anything else is a 500.
func WriteAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		WriteInternalError(w, r, err)
		return
	}
	if authErr.Err != nil {
		observability.FromContext(r.Context()).WithError(authErr.Err).
			WithField("kind", authErr.Kind.String()).
			Debug(authErr.Message)
	}
	WriteErrorMessage(w, authErr.Status(), authErr.Message)
}

// WriteStoreError maps storage sentinels and access errors to a response.
// notFound is the message used for storage.ErrNotFound.
func WriteStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		WriteAuthError(w, r, err)
	case errors.Is(err, storage.ErrNotFound):
		WriteNotFound(w, notFound)
	case errors.Is(err, storage.ErrConflict):
		WriteErrorMessage(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, storage.ErrUnavailable):
		observability.FromContext(r.Context()).WithError(err).Error("storage unavailable")
		WriteServiceUnavailable(w, "service temporarily unavailable")
	default:
		WriteInternalError(w, r, err)
	}
}
