// Package apperr classifies errors into the categories clients branch on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the user-visible error category.
type Kind int

const (
	// Internal is the zero value so unclassified errors are internal.
	Internal Kind = iota
	NotFound
	InvalidRequest
	ServiceUnavailable
)

// Stable codes returned to clients.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "SYSTEM_ERROR"

	CodeNoVector        = "NO_VECTOR"
	CodeInvalidFile     = "INVALID_FILE"
	CodeProcessingError = "PROCESSING_ERROR"
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidRequest:
		return "invalid_request"
	case ServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal"
	}
}

// DefaultCode returns the stable code for k.
func (k Kind) DefaultCode() string {
	switch k {
	case NotFound:
		return CodeNotFound
	case InvalidRequest:
		return CodeInvalidRequest
	case ServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}

// HTTPStatus maps k to an HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case InvalidRequest:
		return http.StatusBadRequest
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Code defaults to the kind's code when empty.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StableCode returns Code or the kind's default.
func (e *Error) StableCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.DefaultCode()
}

// WithDetail returns e with key set in Details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New returns an Error of kind k with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind k. A nil err returns nil.
func Wrap(k Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Message: message, Err: err}
}

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

// Invalidf returns an InvalidRequest error.
func Invalidf(format string, args ...interface{}) *Error {
	return New(InvalidRequest, format, args...)
}

// Unavailablef returns a ServiceUnavailable error.
func Unavailablef(format string, args ...interface{}) *Error {
	return New(ServiceUnavailable, format, args...)
}

// WithCode sets a sub-code that stays inside the kind's category.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	if ae, ok := As(err); ok {
		return ae.StableCode()
	}
	return CodeInternal
}

// Is reports whether err is classified as k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
