// Package errors maps failures onto HTTP responses: a structured Error with a
// type, a client-safe message and optional context fields.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
)

// ErrorType is the category of an error, used for metrics and status codes.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"   // 400
	TypeNotFound    ErrorType = "not_found"    // 404
	TypeConflict    ErrorType = "conflict"     // 409
	TypeRateLimited ErrorType = "rate_limited" // 429
	TypeInternal    ErrorType = "internal"     // 500
	TypeExternal    ErrorType = "external"     // 502
)

type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error { return newError(TypeValidation, message, nil) }

func NotFoundError(message string) *Error { return newError(TypeNotFound, message, nil) }

func ConflictError(message string, cause error) *Error {
	return newError(TypeConflict, message, cause)
}

func RateLimitedError(message string) *Error { return newError(TypeRateLimited, message, nil) }

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// WithContext adds a context field (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients. The success flag matches
// the shape of every other API response.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error. Domain
// sentinels get their own type; anything unrecognised is internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrDuplicateRun):
		return ConflictError("Player already has an active run", err)
	case errors.Is(err, domain.ErrRunNotFound):
		return NotFoundError("Run not found")
	case errors.Is(err, domain.ErrReplayNotFound):
		return NotFoundError("Replay not found")
	case errors.Is(err, domain.ErrInvalidChannel):
		return ValidationError(err.Error())
	case errors.Is(err, domain.ErrPersistence):
		return InternalError("Failed to persist run data", err)
	default:
		return InternalError("internal server error", err)
	}
}
