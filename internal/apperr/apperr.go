// Package apperr defines the classified errors surfaced to users.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error class.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConfiguration     Kind = "configuration"
	KindRateLimited       Kind = "rate_limited"
	KindMalformedResponse Kind = "malformed_response"
	KindTransient         Kind = "transient_service"
	KindNotFound          Kind = "not_found"
)

// Code identifies a specific error condition.
type Code string

const (
	CodeMissingFields       Code = "MISSING_FIELDS"       // 422
	CodeLengthWarning       Code = "LENGTH_WARNING"       // 409
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS" // 402
	CodeAccessRequired      Code = "ACCESS_REQUIRED"      // 403
	CodeAccessDenied        Code = "ACCESS_DENIED"        // 403
	CodeAttemptInFlight     Code = "ATTEMPT_IN_FLIGHT"    // 409
	CodeInvalidRequest      Code = "INVALID_REQUEST"      // 400
	CodeConfigMissing       Code = "CONFIG_MISSING"       // 503
	CodeRateLimited         Code = "RATE_LIMITED"         // 429
	CodeMalformedResponse   Code = "MALFORMED_RESPONSE"   // 502
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"  // 503
	CodeNotFound            Code = "NOT_FOUND"            // 404
)

// Error is a classified error with an HTTP status and a translatable message.
type Error struct {
	Kind      Kind
	Code      Code
	Status    int
	MessageID string
	Details   map[string]any
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewMissingFields reports a blank prompt or essay.
func NewMissingFields() *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeMissingFields,
		Status:    http.StatusUnprocessableEntity,
		MessageID: "ErrorIncomplete",
	}
}

// NewLengthWarning reports an under-length essay awaiting confirmation.
func NewLengthWarning(words, minWords int) *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeLengthWarning,
		Status:    http.StatusConflict,
		MessageID: "LengthWarning",
		Details:   map[string]any{"wordCount": words, "minWords": minWords},
	}
}

// NewInsufficientCredits reports a zero balance.
func NewInsufficientCredits() *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeInsufficientCredits,
		Status:    http.StatusPaymentRequired,
		MessageID: "ErrorNoCredits",
	}
}

// NewAccessRequired reports a locked profile.
func NewAccessRequired() *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeAccessRequired,
		Status:    http.StatusForbidden,
		MessageID: "ErrorAccessRequired",
	}
}

// NewAccessDenied reports a wrong access code.
func NewAccessDenied() *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeAccessDenied,
		Status:    http.StatusForbidden,
		MessageID: "ErrorAccessDenied",
	}
}

// NewAttemptInFlight reports a second submit while one is pending.
func NewAttemptInFlight() *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeAttemptInFlight,
		Status:    http.StatusConflict,
		MessageID: "ErrorInFlight",
	}
}

// NewInvalidRequest reports a malformed client request.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      CodeInvalidRequest,
		Status:    http.StatusBadRequest,
		MessageID: "ErrorInvalidRequest",
		Details:   map[string]any{"reason": msg},
	}
}

// NewConfigMissing reports an absent or malformed model credential.
func NewConfigMissing(err error) *Error {
	return &Error{
		Kind:      KindConfiguration,
		Code:      CodeConfigMissing,
		Status:    http.StatusServiceUnavailable,
		MessageID: "ErrorConfig",
		Err:       err,
	}
}

// NewRateLimited reports throttling by the model provider.
func NewRateLimited(err error) *Error {
	return &Error{
		Kind:      KindRateLimited,
		Code:      CodeRateLimited,
		Status:    http.StatusTooManyRequests,
		MessageID: "ErrorRateLimited",
		Details:   map[string]any{"retryAfterSeconds": 60},
		Err:       err,
	}
}

// NewMalformedResponse reports a model reply that does not match the declared shape.
func NewMalformedResponse(err error) *Error {
	return &Error{
		Kind:      KindMalformedResponse,
		Code:      CodeMalformedResponse,
		Status:    http.StatusBadGateway,
		MessageID: "ErrorService",
		Err:       err,
	}
}

// NewTransient reports any other model failure.
func NewTransient(err error) *Error {
	return &Error{
		Kind:      KindTransient,
		Code:      CodeServiceUnavailable,
		Status:    http.StatusServiceUnavailable,
		MessageID: "ErrorService",
		Err:       err,
	}
}

// NewNotFound reports a missing record.
func NewNotFound(what string) *Error {
	return &Error{
		Kind:      KindNotFound,
		Code:      CodeNotFound,
		Status:    http.StatusNotFound,
		MessageID: "ErrorNotFound",
		Details:   map[string]any{"identifier": what},
	}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is checks if an error is an *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// KindOf returns the error class, or "" for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
