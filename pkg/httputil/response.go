package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/logger"
	"github.com/avelar/fintrack/pkg/validator"
)

// Meta carries per-response request tracking information.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Path      string    `json:"path,omitempty"`
}

// ErrorBody is the error object inside the standard envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Response is the standard JSON envelope used across all endpoints.
// Success responses carry Message/Data; error responses carry Error and
// additionally record the request path in Meta.
type Response struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	Data       any        `json:"data,omitempty"`
	Pagination any        `json:"pagination,omitempty"`
	Error      *ErrorBody `json:"error,omitempty"`
	Meta       Meta       `json:"meta"`
}

type debugKey struct{}

// WithDebug marks the context so that error responses may carry internal
// error detail. Only enabled outside production.
func WithDebug(ctx context.Context) context.Context {
	return context.WithValue(ctx, debugKey{}, true)
}

func debugEnabled(ctx context.Context) bool {
	enabled, _ := ctx.Value(debugKey{}).(bool)
	return enabled
}

func meta(r *http.Request) Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}
}

func errorMeta(r *http.Request) Meta {
	m := meta(r)
	m.Path = r.URL.Path
	return m
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope with the given status, message, and data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	WriteJSON(w, status, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta(r),
	})
}

// WritePaginated writes a 200 success envelope with a pagination block.
func WritePaginated(w http.ResponseWriter, r *http.Request, message string, data, pagination any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: pagination,
		Meta:       meta(r),
	})
}

// WriteError writes a standardized error envelope based on the error type.
// It handles AppError, the package sentinels, and logs internal server errors.
// It prefers the request-scoped logger from context (set by the RequestLogger
// middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		status = appErr.Status
		code = appErr.Code
		message = appErr.Message
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "CONFLICT"
		message = "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "BAD_REQUEST"
		message = err.Error()
	case errors.Is(err, apperrors.ErrUnauthorized):
		code = "UNAUTHORIZED"
		message = err.Error()
	case status == http.StatusServiceUnavailable:
		code = "SERVICE_UNAVAILABLE"
		message = "service temporarily unavailable"
	}

	body := &ErrorBody{Code: code, Message: message}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		// Internal detail reaches clients only in non-production configurations.
		if debugEnabled(r.Context()) {
			body.Details = map[string]string{"error": err.Error()}
		}
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error:   body,
		Meta:    errorMeta(r),
	})
}

// WriteValidationError writes a 422 envelope with field-level details.
// Non-structural decode failures fall back to a 400 BAD_REQUEST.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusUnprocessableEntity, Response{
			Success: false,
			Error: &ErrorBody{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Details: valErr.Fields(),
			},
			Meta: errorMeta(r),
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Error:   &ErrorBody{Code: "BAD_REQUEST", Message: err.Error()},
		Meta:    errorMeta(r),
	})
}
