// Package http provides the JSON API over the settlement engine.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from engine errors to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"divvy/internal/core"
	"divvy/internal/ledger"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
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

// Body sets the value to be serialized as the JSON response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

// errorBody is the uniform error envelope of the API.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse creates a standard error response with a machine-readable
// code and a human-readable detail.
func ErrorResponse(statusCode int, code, detail string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: code, Detail: detail})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(detail string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", detail)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(code, detail string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, code, detail)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(code, detail string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, code, detail)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(detail string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, "conflict", detail)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal_error", "internal server error")
}

// ResponseForError maps engine errors onto the API's status codes:
// referential failures are 404, rejected monetary input is 422, anything
// unrecognized is 500. The mapping goes through errors.Is so wrapped
// context never hides the category.
func ResponseForError(err error) *JSONResponseBuilder {
	switch {
	case errors.Is(err, core.ErrUnknownGroup):
		return NotFoundError("unknown_group", err.Error())
	case errors.Is(err, core.ErrUnknownMember):
		return NotFoundError("unknown_member", err.Error())
	case errors.Is(err, core.ErrInvalidSplit):
		return UnprocessableEntityError("invalid_split", err.Error())
	case errors.Is(err, core.ErrInvalidAmount):
		return UnprocessableEntityError("invalid_amount", err.Error())
	case errors.Is(err, core.ErrEmptyDescription):
		return UnprocessableEntityError("empty_description", err.Error())
	case errors.Is(err, ledger.ErrDuplicateEmail):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrAmountOverflow):
		return UnprocessableEntityError("amount_overflow", err.Error())
	default:
		return InternalServerError()
	}
}
