// Package errors defines the error taxonomy shared by the storefront packages.
//
// Local input problems are ServiceErrors with a 4xx status, failures reported
// by the remote storefront API are APIErrors. Not-found conditions on local
// cart state are not errors at all and never reach this package.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeInvalidFormat     ErrorCode = "INVALID_FORMAT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error with a code, a human-readable message and the
// HTTP status a caller would map it to.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail key to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// InvalidInput reports a malformed local argument.
func InvalidInput(field, message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil).WithDetails("field", field)
}

// InvalidFormat reports a payload that could not be interpreted.
func InvalidFormat(what string, err error) *ServiceError {
	return newError(CodeInvalidFormat, http.StatusBadRequest, "invalid "+what, err)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil).WithDetails("id", id)
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken reports a token that could not be used.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid token", err)
}

// Conflict reports a request that cannot be applied to the current state.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded reports a request rejected by a local limiter.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window), nil)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// APIError is a non-2xx answer from the remote storefront API.
type APIError struct {
	Service string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return e.Message
}

// NewAPIError builds an APIError, defaulting the message to "HTTP <status>".
func NewAPIError(service string, status int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{Service: service, Status: status, Message: message}
}

// GetAPIError returns the APIError in err's chain, or nil.
func GetAPIError(err error) *APIError {
	var ae *APIError
	if stderrors.As(err, &ae) {
		return ae
	}
	return nil
}

// HTTPStatus maps any error to the status a caller should report.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	if ae := GetAPIError(err); ae != nil {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is a local or remote not-found.
func IsNotFound(err error) bool {
	return HTTPStatus(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a local or remote auth failure.
func IsUnauthorized(err error) bool {
	return HTTPStatus(err) == http.StatusUnauthorized
}

// UserMessage returns the text to show an end user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if ae := GetAPIError(err); ae != nil {
		return ae.Message
	}
	if se := GetServiceError(err); se != nil {
		return se.Message
	}
	return err.Error()
}
