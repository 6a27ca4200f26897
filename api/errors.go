package api

import (
	"encoding/json"
	"errors"
	"net/http"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Columns []string `json:"availableColumns,omitempty"`
}

// statusFor maps an error onto an HTTP status and an error name.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "AuthenticationError"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "AuthorizationError"
	case errors.Is(err, sheetstore.ErrBadRequest):
		return http.StatusBadRequest, "ValidationError"
	case errors.Is(err, sheetstore.ErrNotFound):
		return http.StatusNotFound, "NotFoundError"
	case errors.Is(err, sheetstore.ErrConflict):
		return http.StatusConflict, "ConflictError"
	case errors.Is(err, sheetstore.ErrUnavailable), errors.Is(err, sheetstore.ErrClosed):
		return http.StatusServiceUnavailable, "ServiceUnavailable"
	default:
		return http.StatusInternalServerError, "InternalServerError"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	status, name := statusFor(err)
	body := errorBody{Error: name, Message: err.Error()}
	if ce, ok := sheetstore.AsColumnError(err); ok {
		body.Columns = ce.Available
	}

	entry := logger.WithFields(logrus.Fields{
		"request_id": RequestIDFrom(r.Context()),
		"status":     status,
	}).WithError(err)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request failed")
		if status == http.StatusInternalServerError {
			body.Message = "An unexpected error occurred"
		}
		if status == http.StatusServiceUnavailable {
			body.Message = "Spreadsheet service is currently unavailable"
		}
	default:
		entry.Debug("request rejected")
	}
	writeJSON(w, status, body)
}
