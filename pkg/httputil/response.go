package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/logger"
	"github.com/ecobazaar/storefront/pkg/validator"
)

// Response is the JSON envelope every storefront endpoint answers with.
type Response struct {
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a successful envelope around data.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Data: data})
}

// WriteError renders err using its AppError code and status when it has one,
// falling back to the sentinel mapping in pkg/errors. Internal errors are
// logged through the request-scoped logger, or fallback when none is mounted.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != http.StatusInternalServerError {
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch status {
	case http.StatusNotFound:
		code, message = "NOT_FOUND", "resource not found"
	case http.StatusBadRequest:
		code, message = "INVALID_INPUT", err.Error()
	case http.StatusConflict:
		code, message = "CONFLICT", err.Error()
	case http.StatusServiceUnavailable:
		code, message = "SERVICE_UNAVAILABLE", "a dependency is unavailable"
	default:
		status = http.StatusInternalServerError
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

// WriteValidationError writes a 400 with per-field messages when err comes
// from the validator package, or a plain INVALID_INPUT otherwise.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
