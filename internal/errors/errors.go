// Package errors defines the error taxonomy surfaced by view operations.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryFetch is a read against the data service that failed
	CategoryFetch ErrorCategory = "fetch"
	// CategoryMutation is a CRUD write that was rejected or unreachable
	CategoryMutation ErrorCategory = "mutation"
	// CategoryTransport is a dropped or unavailable price stream
	CategoryTransport ErrorCategory = "transport"
	// CategoryUserInput represents rejected caller input (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryNotFound represents an unknown view or resource
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents anything uncategorised (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// upstreamStatus returns the HTTP status carried by cause, or 0.
func upstreamStatus(cause error) int {
	var sc StatusCoder
	if stderrors.As(cause, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// NewFetchFailure wraps a failed read. An upstream 404 keeps its status so
// callers can show a "not found" state instead of a generic error.
func NewFetchFailure(operation string, cause error) *CategorizedError {
	e := &CategorizedError{
		Category:   CategoryFetch,
		StatusCode: http.StatusBadGateway,
		Code:       "FETCH_FAILED",
		Message:    fmt.Sprintf("failed to %s", operation),
		Cause:      cause,
	}
	if upstreamStatus(cause) == http.StatusNotFound {
		e.StatusCode = http.StatusNotFound
		e.Code = "NOT_FOUND"
	}
	return e
}

// NewMutationFailure wraps a rejected or unreachable write.
func NewMutationFailure(operation string, cause error) *CategorizedError {
	e := &CategorizedError{
		Category:   CategoryMutation,
		StatusCode: http.StatusBadGateway,
		Code:       "MUTATION_FAILED",
		Message:    fmt.Sprintf("failed to %s", operation),
		Cause:      cause,
	}
	if st := upstreamStatus(cause); st >= 400 && st < 500 {
		e.StatusCode = st
	}
	return e
}

// NewTransportDropped reports that the price stream connection was lost.
func NewTransportDropped(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "TRANSPORT_DROPPED",
		Message:    "live price stream unavailable, showing last known prices",
		Cause:      cause,
	}
}

// NewInvalidInputError creates a rejected-input error
func NewInvalidInputError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_INPUT",
		Message:    fmt.Sprintf("invalid %s: %s", param, reason),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// Categorize returns err as a CategorizedError, wrapping unknown errors as system errors.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL",
		Message:    "unexpected error",
		Cause:      err,
	}
}

// Is reports whether err carries the given category.
func Is(err error, category ErrorCategory) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == category
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// UserMessage returns the human-readable message shown in notifications,
// including the upstream message when one is present.
func UserMessage(err error) string {
	catErr := Categorize(err)
	if catErr == nil {
		return ""
	}
	if catErr.Cause != nil && catErr.Category != CategorySystem {
		return fmt.Sprintf("%s: %v", capitalise(catErr.Message), catErr.Cause)
	}
	return capitalise(catErr.Message)
}

func capitalise(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
