package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// APIError is one entry of an API error document.
type APIError struct {
	Status string       `json:"status"           yaml:"status"`
	Code   string       `json:"code"             yaml:"code"`
	Title  string       `json:"title"            yaml:"title"`
	Detail string       `json:"detail"           yaml:"detail"`
	Source *ErrorSource `json:"source,omitempty" yaml:"source,omitempty"`
}

// ErrorSource points at the offending part of a request payload.
type ErrorSource struct {
	Pointer string `json:"pointer" yaml:"pointer"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (code: %s)", e.Title, e.Code)
	}

	return fmt.Sprintf("%s: %s (code: %s)", e.Title, e.Detail, e.Code)
}

// Field returns the payload field named by the source pointer, or "".
func (e *APIError) Field() string {
	if e.Source == nil {
		return ""
	}

	return strings.Trim(strings.ReplaceAll(e.Source.Pointer, "/", "."), ".")
}

// StatusCode parses the status string, 0 when absent.
func (e *APIError) StatusCode() int {
	code, err := strconv.Atoi(e.Status)
	if err != nil {
		return 0
	}

	return code
}

// ResponseError represents the error document returned by the API.
type ResponseError struct {
	Errors []APIError `json:"errors"`
}

// Error implements the error interface for ResponseError.
func (e *ResponseError) Error() string {
	if len(e.Errors) == 0 {
		return "unknown error"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	return fmt.Sprintf("multiple errors: %v", e.Errors)
}

// FirstError returns the first error or nil.
func (e *ResponseError) FirstError() *APIError {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}

	return nil
}

// FieldErrors converts the document into field errors.
func (e *ResponseError) FieldErrors() []FieldError {
	out := make([]FieldError, 0, len(e.Errors))

	for i := range e.Errors {
		apiErr := &e.Errors[i]

		message := apiErr.Detail
		if message == "" {
			message = apiErr.Title
		}

		out = append(out, FieldError{Field: apiErr.Field(), Code: apiErr.Code, Message: message})
	}

	return out
}

// ParseResponseError parses an error response from JSON.
func ParseResponseError(data []byte) (*ResponseError, error) {
	var errResp ResponseError

	err := json.Unmarshal(data, &errResp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal response error: %w", err)
	}

	return &errResp, nil
}

// FieldError is a single field level rejection.
type FieldError struct {
	Field   string `json:"field"   yaml:"field"`
	Code    string `json:"code"    yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}

	return e.Field + ": " + e.Message
}

// RequestFailure means the request could not be served: a transport error,
// an unavailable server or an unexpected status.
type RequestFailure struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestFailure) Error() string {
	if e.StatusCode == 0 {
		return "request failed: " + e.Message
	}

	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *RequestFailure) Unwrap() error { return e.Err }

// NotFoundError means a valid request named an absent resource.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}

	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ValidationFailure carries field level rejections. It is recoverable: the
// caller can correct the fields and save again.
type ValidationFailure struct {
	StatusCode int
	Errors     []FieldError
}

func (e *ValidationFailure) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldError returns the first error reported for field.
func (e *ValidationFailure) FieldError(field string) (FieldError, bool) {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return fe, true
		}
	}

	return FieldError{}, false
}

// ConflictFailure reports a uniqueness violation on a specific field so the
// caller can highlight it.
type ConflictFailure struct {
	Field   string
	Code    string
	Message string
	Errors  []FieldError
}

func (e *ConflictFailure) Error() string {
	if e.Field == "" {
		return "conflict: " + e.Message
	}

	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

// Uniqueness error codes the client classifies as conflicts regardless of
// the HTTP status.
var conflictCodes = map[string]bool{
	"UNIQUE_VIOLATION": true,
	"DUPLICATE_ID":     true,
	"DUPLICATE_ENTRY":  true,
}

// ClassifyResponse maps a failed response to the error taxonomy. errResp may
// be nil when the body was not an error document.
func ClassifyResponse(statusCode int, errResp *ResponseError, entityName, id string) error {
	var detail string

	if errResp != nil {
		if first := errResp.FirstError(); first != nil {
			detail = first.Detail
			if detail == "" {
				detail = first.Title
			}

			if conflictCodes[first.Code] {
				return newConflict(errResp)
			}
		}
	}

	if detail == "" {
		detail = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusNotFound:
		var cause error
		if errResp != nil {
			cause = errResp
		}

		return &NotFoundError{Entity: entityName, ID: id, Err: cause}
	case http.StatusConflict:
		if errResp != nil {
			return newConflict(errResp)
		}

		return &ConflictFailure{Message: detail}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if errResp != nil && len(errResp.Errors) > 0 {
			return &ValidationFailure{StatusCode: statusCode, Errors: errResp.FieldErrors()}
		}

		return &ValidationFailure{StatusCode: statusCode, Errors: []FieldError{{Message: detail}}}
	}

	var cause error
	if errResp != nil {
		cause = errResp
	}

	return &RequestFailure{StatusCode: statusCode, Message: detail, Err: cause}
}

// ClassifyItemErrors maps the error list of a single sync item.
func ClassifyItemErrors(errs []APIError, entityName, id string) error {
	if len(errs) == 0 {
		return &RequestFailure{Message: "operation failed without error details"}
	}

	doc := &ResponseError{Errors: errs}

	status := doc.FirstError().StatusCode()
	if status == 0 {
		status = http.StatusBadRequest
	}

	return ClassifyResponse(status, doc, entityName, id)
}

func newConflict(errResp *ResponseError) *ConflictFailure {
	fieldErrors := errResp.FieldErrors()
	first := fieldErrors[0]

	return &ConflictFailure{
		Field:   first.Field,
		Code:    first.Code,
		Message: first.Message,
		Errors:  fieldErrors,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	notFound := &NotFoundError{}

	return errors.As(err, &notFound)
}

// IsValidation checks if the error carries field level rejections.
func IsValidation(err error) bool {
	validation := &ValidationFailure{}

	return errors.As(err, &validation)
}

// IsConflict checks if the error is a uniqueness conflict.
func IsConflict(err error) bool {
	conflict := &ConflictFailure{}

	return errors.As(err, &conflict)
}

// IsRequestFailure checks if the error is a transport or server failure.
func IsRequestFailure(err error) bool {
	failure := &RequestFailure{}

	return errors.As(err, &failure)
}

// Static errors for err113 compliance.
var (
	ErrNilEntity           = errors.New("entity is nil")
	ErrEntityMismatch      = errors.New("entity does not belong to this repository")
	ErrDuplicateID         = errors.New("collection already contains id")
	ErrEmptyID             = errors.New("entity id is empty")
	ErrSyncResultMismatch  = errors.New("sync response does not match the request")
	ErrUnexpectedResponse  = errors.New("unexpected response body")
	ErrUnknownSyncAction   = errors.New("unknown sync action")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker is open")
	ErrRateLimiterRequired = errors.New("requests per second must be positive")
)
