package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/KaramelBytes/gradecast/internal/clean"
	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/session"
	"github.com/KaramelBytes/gradecast/internal/table"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func newAPIError(status int, code, msg string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: msg}
}

// toAPIError maps package errors to HTTP responses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		e := newAPIError(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")
		e.Details = details
		return e
	}
	var modelErr *forecast.ModelingError
	if errors.As(err, &modelErr) {
		e := newAPIError(http.StatusUnprocessableEntity, "MODELING_FAILED", err.Error())
		e.Details = map[string]string{"stage": modelErr.Stage}
		return e
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, loader.ErrSampleNotFound):
		return newAPIError(http.StatusNotFound, "SAMPLE_NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrNoData):
		return newAPIError(http.StatusConflict, "NO_DATA", "Load a file or pick a sample first")
	case errors.Is(err, loader.ErrUnsupported):
		return newAPIError(http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE", "Upload a CSV or Excel (.xlsx) file")
	case errors.Is(err, forecast.ErrInvalidThreshold), errors.Is(err, clean.ErrUnknownStrategy):
		return newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
	case errors.Is(err, table.ErrUnknownColumn):
		return newAPIError(http.StatusUnprocessableEntity, "UNKNOWN_COLUMN", err.Error())
	case errors.Is(err, forecast.ErrEmptyTable),
		errors.Is(err, forecast.ErrNoNumericColumns),
		errors.Is(err, forecast.ErrTargetNotNumeric),
		errors.Is(err, forecast.ErrTargetEmpty):
		return newAPIError(http.StatusUnprocessableEntity, "INVALID_SCHEMA", err.Error())
	case errors.Is(err, clean.ErrNotNumeric), errors.Is(err, clean.ErrNoValues):
		return newAPIError(http.StatusUnprocessableEntity, "CLEAN_FAILED", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "CANCELLED", "Request cancelled")
	}
	return newAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
}

func badRequest(format string, args ...any) *APIError {
	return newAPIError(http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf(format, args...))
}
