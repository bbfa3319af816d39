// Package http exposes the ledger over a JSON API.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// errBadRequest marks request bodies or parameters that could not be parsed.
var errBadRequest = errors.New("bad request")

// validationErrors are reported as 422 Unprocessable Entity.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyName,
	core.ErrEmptyCategory,
	core.ErrInvalidSign,
	core.ErrInvalidCategory,
	core.ErrInvalidOccurrence,
	core.ErrNoteTooLong,
	core.ErrInvalidSchedule,
	core.ErrUnknownSchedule,
	errInvalidPeriod,
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates an error response with the standard body.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUserNotFound), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError logs and writes err. Internal failures are not echoed back.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		message = "internal server error"
	}
	ErrorResponse(status, message).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
